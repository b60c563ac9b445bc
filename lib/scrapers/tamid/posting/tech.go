package posting

const TrackTech = "tech"

var techSpec = trackSpec{
	track:          TrackTech,
	categoryMarker: "Tech Consulting",
	deliverables: []deliverableField{
		{Name: "deliverable_description", List: 0, Label: "Deliverable Description"},
		{Name: "new_or_existing", List: 1, Label: "New or Existing Tech"},
		{Name: "deliverable_type", List: 1, Label: "Deliverable Type"},
		{Name: "work_type", List: 1, Label: "Work Type"},
		{Name: "tech_stack", List: 1, Label: "Technology Stack"},
	},
}
