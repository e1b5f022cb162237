package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
)

const wildcard = "*"

var errInvalidAll = errors.New("invalid value for All, expected '*'")

type allOrListKind int

const (
	kindAll allOrListKind = iota
	kindList
)

// AllOrList is either the wildcard "*" (All) or an explicit ordered list of items.
type AllOrList[T any] struct {
	kind  allOrListKind
	items []T
}

// All returns the wildcard variant.
func All[T any]() AllOrList[T] {
	return AllOrList[T]{kind: kindAll}
}

// List returns the list variant holding items, in order.
func List[T any](items ...T) AllOrList[T] {
	if items == nil {
		items = []T{}
	}
	return AllOrList[T]{kind: kindList, items: items}
}

// IsAll reports whether this is the wildcard variant.
func (a AllOrList[T]) IsAll() bool {
	return a.kind == kindAll
}

// Items returns the items of the list variant. It is nil for All.
func (a AllOrList[T]) Items() []T {
	if a.kind == kindAll {
		return nil
	}
	return a.items
}

// MarshalJSON renders All as "*" and List as a JSON array.
func (a AllOrList[T]) MarshalJSON() ([]byte, error) {
	if a.kind == kindAll {
		return json.Marshal(wildcard)
	}
	items := a.items
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

// UnmarshalJSON accepts exactly the string "*" or a JSON array.
func (a *AllOrList[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errInvalidAll
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != wildcard {
			return errInvalidAll
		}
		*a = All[T]()
		return nil
	case '[':
		var items []T
		if err := decodeStrict(data, &items); err != nil {
			return err
		}
		*a = List(items...)
		return nil
	default:
		return errors.New("invalid value for AllOrList, expected '*' or a list")
	}
}
