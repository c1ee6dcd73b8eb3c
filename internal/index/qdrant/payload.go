package qdrant

import (
	pb "github.com/qdrant/go-client/qdrant"

	"github.com/linkhive/linkhive/internal/index"
)

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func listValue(items []string) *pb.Value {
	values := make([]*pb.Value, len(items))
	for i, s := range items {
		values[i] = stringValue(s)
	}
	return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}
}

func unitToPayload(u index.Unit) map[string]*pb.Value {
	return map[string]*pb.Value{
		"uuid":            stringValue(u.UUID),
		"parent_link":     stringValue(u.ParentLink),
		"parent_content":  stringValue(u.ParentContent),
		"parent_summary":  stringValue(u.ParentSummary),
		"parent_title":    stringValue(u.ParentTitle),
		"parent_keywords": listValue(u.ParentKeywords),
		"child_links":     listValue(u.ChildLinks),
		"child_contents":  listValue(u.ChildContents),
	}
}

func stringList(v *pb.Value) []string {
	list := v.GetListValue()
	if list == nil {
		return nil
	}
	out := make([]string, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		out = append(out, item.GetStringValue())
	}
	return out
}

func payloadToUnit(payload map[string]*pb.Value) index.Unit {
	return index.Unit{
		UUID:           payload["uuid"].GetStringValue(),
		ParentLink:     payload["parent_link"].GetStringValue(),
		ParentContent:  payload["parent_content"].GetStringValue(),
		ParentSummary:  payload["parent_summary"].GetStringValue(),
		ParentTitle:    payload["parent_title"].GetStringValue(),
		ParentKeywords: stringList(payload["parent_keywords"]),
		ChildLinks:     stringList(payload["child_links"]),
		ChildContents:  stringList(payload["child_contents"]),
	}
}
