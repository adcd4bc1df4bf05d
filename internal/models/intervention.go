package models

// RawIntervention is one dated block of a well history document.
type RawIntervention struct {
	Index      int    `json:"index"`
	FechaTexto string `json:"fechaTexto,omitempty"`
	FechaISO   string `json:"fechaISO,omitempty"`
	Text       string `json:"text"`
}

// Document is the text of a converted source document.
type Document struct {
	Name   string `json:"name"`
	Format string `json:"format"`
	Text   string `json:"text"`
	HTML   string `json:"html,omitempty"`
}
