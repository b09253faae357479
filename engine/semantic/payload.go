package semantic

import (
	pb "github.com/qdrant/go-client/qdrant"

	"github.com/docsmith-ai/docsmith/engine/domain"
)

// Payload field keys. The payload schema is fixed: the section text kept
// verbatim for grounding, plus its document coordinates.
const (
	fieldText      = "text"
	fieldPath      = "path"
	fieldTitle     = "title"
	fieldPageTitle = "page_title"
)

func payloadToValues(p domain.Payload) map[string]*pb.Value {
	return map[string]*pb.Value{
		fieldText:      {Kind: &pb.Value_StringValue{StringValue: p.Text}},
		fieldPath:      {Kind: &pb.Value_StringValue{StringValue: p.Path}},
		fieldTitle:     {Kind: &pb.Value_StringValue{StringValue: p.Title}},
		fieldPageTitle: {Kind: &pb.Value_StringValue{StringValue: p.PageTitle}},
	}
}

func payloadFromValues(values map[string]*pb.Value) domain.Payload {
	return domain.Payload{
		Text:      values[fieldText].GetStringValue(),
		Path:      values[fieldPath].GetStringValue(),
		Title:     values[fieldTitle].GetStringValue(),
		PageTitle: values[fieldPageTitle].GetStringValue(),
	}
}
