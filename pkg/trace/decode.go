package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// File is the on-disk trace layout: a function table plus events that refer
// to it by id.
type File struct {
	Functions []FunctionEntry `json:"functions"`
	Events    []EventEntry    `json:"events"`
}

// FunctionEntry is one row of the function table.
type FunctionEntry struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// EventEntry is one raw event. Function is optional on returns.
type EventEntry struct {
	Kind     string `json:"kind"`
	Function *int   `json:"function,omitempty"`
	Cost     uint64 `json:"cost"`
}

// Decode reads a JSON trace file and resolves every event against its
// function table.
func Decode(r io.Reader) ([]Event, error) {
	var f File
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("cannot parse trace: %w", err)
	}
	return f.Resolve()
}

// Resolve converts raw entries into events.
func (f *File) Resolve() ([]Event, error) {
	table := make(map[int]FunctionEntry, len(f.Functions))
	for _, fn := range f.Functions {
		if _, dup := table[fn.ID]; dup {
			return nil, fmt.Errorf("duplicate function id %d in function table", fn.ID)
		}
		table[fn.ID] = fn
	}

	events := make([]Event, 0, len(f.Events))
	for i, raw := range f.Events {
		ev := Event{Cost: raw.Cost}
		switch raw.Kind {
		case "call":
			ev.Kind = Call
			if raw.Function == nil {
				return nil, &UnknownFunctionIdentityError{Index: i, Ref: "<missing>"}
			}
		case "return":
			ev.Kind = Return
		default:
			return nil, fmt.Errorf("event %d: unknown kind %q", i, raw.Kind)
		}

		if raw.Function != nil {
			id, err := resolve(table, *raw.Function, i)
			if err != nil {
				return nil, err
			}
			ev.Function = id
		}
		events = append(events, ev)
	}
	return events, nil
}

func resolve(table map[int]FunctionEntry, ref, index int) (FunctionID, error) {
	fn, ok := table[ref]
	if !ok {
		return FunctionID{}, &UnknownFunctionIdentityError{Index: index, Ref: "#" + strconv.Itoa(ref)}
	}
	cat, err := ParseCategory(fn.Category)
	if err != nil || fn.Name == "" {
		return FunctionID{}, &UnknownFunctionIdentityError{
			Index:    index,
			Ref:      "#" + strconv.Itoa(ref),
			Function: FunctionID{Name: fn.Name, Category: cat},
		}
	}
	return FunctionID{Name: fn.Name, Category: cat}, nil
}
