package oracle

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// MessageSchema pairs an operation with its request and response schemas.
type MessageSchema struct {
	Operation string             `json:"operation"`
	Request   *jsonschema.Schema `json:"request"`
	Response  *jsonschema.Schema `json:"response"`
}

// Schemas reflects every request/response pair in operation order.
func Schemas() []MessageSchema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	pairs := []struct {
		op       string
		req, res any
	}{
		{OpCutoffs, &CutoffsRequest{}, &CutoffsResponse{}},
		{OpFit, &FitRequest{}, &FitResponse{}},
		{OpHarmonic, &HarmonicRequest{}, &HarmonicResponse{}},
		{OpAnharmonic, &AnharmonicRequest{}, &AnharmonicResponse{}},
		{OpRenormalize, &RenormalizeRequest{}, &RenormRecord{}},
		{OpExpand, &ExpandRequest{}, &ExpandResponse{}},
		{OpPhonon, &PhononRequest{}, &PhononResponse{}},
		{OpExport, &ExportRequest{}, &ExportResponse{}},
	}
	out := make([]MessageSchema, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, MessageSchema{
			Operation: p.op,
			Request:   reflector.Reflect(p.req),
			Response:  reflector.Reflect(p.res),
		})
	}
	return out
}

// SchemaJSON renders Schemas as indented JSON.
func SchemaJSON() ([]byte, error) {
	data, err := json.MarshalIndent(Schemas(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode oracle schemas: %w", err)
	}
	return data, nil
}
