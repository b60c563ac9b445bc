package core

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"tamid-harvester/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/tamid/core")

var ErrLoginFailed = fmt.Errorf("the portal rejected the login, check your credentials")
var ErrLoginPageChanged = fmt.Errorf("the login page is missing its hidden form fields, its structure has likely changed")

// how much of the page body the post-login liveness check compares
const livenessPrefixLen = 1000

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ClientOptions struct {
	// posting detail endpoint, the posting id gets appended verbatim
	BaseUrl string
	// login form endpoint (GET for the hidden fields, POST to submit)
	LoginUrl string
	// a known post-login resource used only for the liveness check
	LandingUrl string
}

type Client struct {
	Http *resty.Client
	opts ClientOptions
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	loginUrl, err := url.Parse(opts.LoginUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(loginUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/tamid/http")

	return &Client{
		Http: client,
		opts: opts,
	}, nil
}

// PostingURL is the canonical source url of a posting.
func (c *Client) PostingURL(id int) string {
	return c.opts.BaseUrl + strconv.Itoa(id)
}

func hiddenField(doc *goquery.Document, selector string) (string, error) {
	value := doc.Find(selector).AttrOr("value", "")
	if value == "" {
		return "", fmt.Errorf("%w: %s not found", ErrLoginPageChanged, selector)
	}
	return value, nil
}

// Login performs the portal's WebForms login handshake: it pulls the
// anti-forgery fields off the login page, posts them back with the
// credentials, then confirms the session took effect.
//
// confirmation is a best-effort liveness heuristic, not a protocol
// guarantee: the portal serves the login page again on bad credentials,
// so an unchanged body prefix on a known post-login resource means the
// session never became live.
func (c *Client) Login(ctx context.Context, creds Credentials) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get(c.opts.LoginUrl)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return err
	}
	loginPage := res.Body()

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(loginPage))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse login page html")
		return err
	}

	viewState, err := hiddenField(doc, "#__VIEWSTATE")
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	viewStateGenerator, err := hiddenField(doc, "#__VIEWSTATEGENERATOR")
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	eventValidation, err := hiddenField(doc, "#__EVENTVALIDATION")
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// the payload only exists for the duration of this call, nothing
	// mutates login state once fetching begins
	_, err = c.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"Email":                creds.Email,
			"password":             creds.Password,
			"submit":               "Sign in",
			"__EVENTTARGET":        "",
			"__EVENTARGUMENT":      "",
			"__VIEWSTATE":          viewState,
			"__VIEWSTATEGENERATOR": viewStateGenerator,
			"__EVENTVALIDATION":    eventValidation,
		}).
		Post(c.opts.LoginUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return err
	}

	res, err = c.Http.R().
		SetContext(ctx).
		Get(c.opts.LandingUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to request landing page after login")
		return err
	}

	if bytes.Equal(prefix(loginPage), prefix(res.Body())) {
		span.SetStatus(codes.Error, ErrLoginFailed.Error())
		return ErrLoginFailed
	}

	return nil
}

func prefix(body []byte) []byte {
	if len(body) > livenessPrefixLen {
		return body[:livenessPrefixLen]
	}
	return body
}

// FetchPosting GETs one posting detail page and returns its body.
// errors here are transport level, the caller decides whether they end
// the run.
func (c *Client) FetchPosting(ctx context.Context, id int) (string, error) {
	ctx, span := tracer.Start(ctx, "client:FetchPosting")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get(c.PostingURL(id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch posting")
		return "", err
	}
	return res.String(), nil
}
