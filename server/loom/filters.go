package loom

import (
	"encoding/json"
	"fmt"
)

// FilterMode combines the predicates of a filter group.
type FilterMode string

const (
	FilterModeAnd FilterMode = "and"
	FilterModeOr  FilterMode = "or"
)

// FilterOperator is the comparison applied by a leaf predicate.
type FilterOperator string

const (
	FilterOpEq       FilterOperator = "eq"
	FilterOpNotEq    FilterOperator = "not_eq"
	FilterOpGt       FilterOperator = "gt"
	FilterOpGte      FilterOperator = "gte"
	FilterOpLt       FilterOperator = "lt"
	FilterOpLte      FilterOperator = "lte"
	FilterOpContains FilterOperator = "contains"
	FilterOpNil      FilterOperator = "nil"
	FilterOpNotNil   FilterOperator = "not_nil"
)

var validFilterOperators = map[FilterOperator]struct{}{
	FilterOpEq: {}, FilterOpNotEq: {}, FilterOpGt: {}, FilterOpGte: {},
	FilterOpLt: {}, FilterOpLte: {}, FilterOpContains: {}, FilterOpNil: {}, FilterOpNotNil: {},
}

// Filter is a leaf predicate of a filter group.
type Filter struct {
	Key      string         `json:"key"`
	Operator FilterOperator `json:"operator"`
	Values   []string       `json:"values"`
}

// FilterGroup is the tagged recursive filter structure attached to retention
// rules and QUERY tasks: a boolean combination of leaf predicates and nested
// groups. It is validated once at the boundary (ParseFilterGroup) so that
// downstream consumers never deal with malformed criteria.
type FilterGroup struct {
	Mode         FilterMode    `json:"mode"`
	Filters      []Filter      `json:"filters"`
	FilterGroups []FilterGroup `json:"filterGroups,omitempty"`
}

// Well-known filter keys.
const (
	FilterKeyEntityType = "entity_type"
	FilterKeyUserID     = "user_id"
)

// ParseFilterGroup decodes and validates a serialized filter group. A nil or
// empty payload yields a nil group, which matches everything.
func ParseFilterGroup(raw []byte) (*FilterGroup, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var fg FilterGroup
	if err := json.Unmarshal(raw, &fg); err != nil {
		return nil, &InvalidArgumentError{name: "filters", reason: fmt.Sprintf("malformed filter group: %v", err)}
	}
	if err := fg.Validate(); err != nil {
		return nil, err
	}
	return &fg, nil
}

// Validate checks modes and operators recursively.
func (fg *FilterGroup) Validate() error {
	if fg == nil {
		return nil
	}
	if fg.Mode != FilterModeAnd && fg.Mode != FilterModeOr {
		return &InvalidArgumentError{name: "filters.mode", reason: fmt.Sprintf("unknown filter mode %q", fg.Mode)}
	}
	for _, f := range fg.Filters {
		if f.Key == "" {
			return &InvalidArgumentError{name: "filters.key", reason: "filter key must not be empty"}
		}
		if _, ok := validFilterOperators[f.Operator]; !ok {
			return &InvalidArgumentError{name: "filters.operator", reason: fmt.Sprintf("unknown filter operator %q", f.Operator)}
		}
	}
	for i := range fg.FilterGroups {
		if err := fg.FilterGroups[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Values collects every value bound to key anywhere in the group, depth
// first. Used by the authorization gate to extract entity_type and user_id
// targets from a QUERY task's filter snapshot.
func (fg *FilterGroup) Values(key string) []string {
	if fg == nil {
		return nil
	}
	var vals []string
	for _, f := range fg.Filters {
		if f.Key == key {
			vals = append(vals, f.Values...)
		}
	}
	for i := range fg.FilterGroups {
		vals = append(vals, fg.FilterGroups[i].Values(key)...)
	}
	return vals
}
