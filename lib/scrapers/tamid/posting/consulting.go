package posting

const TrackConsulting = "consulting"

var consultingSpec = trackSpec{
	track:          TrackConsulting,
	categoryMarker: "Consulting",
	deliverables: []deliverableField{
		{Name: "deliverable_description", List: 0, Label: "Deliverable Description"},
		{Name: "deliverable_type", List: 1, Label: "Deliverable Type"},
		{Name: "work_type", List: 1, Label: "Work Type"},
		{Name: "client_stage", List: 1, Label: "Client Stage"},
	},
}
