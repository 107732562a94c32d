// Package gamedb is the in-memory object database: rooms, exits, things and
// players linked into location and contents chains.
package gamedb

import (
	"slices"
	"strings"
	"time"
)

// DBRef addresses an object. Negative values are sentinels.
type DBRef int

const (
	Nothing DBRef = -1
	Home    DBRef = -3 // exit destination meaning "the mover's home"
)

type ObjectType int

const (
	TypeRoom   ObjectType = 0
	TypeThing  ObjectType = 1
	TypeExit   ObjectType = 2
	TypePlayer ObjectType = 3
)

// TypeMask selects the object type from Flags.
const TypeMask = 0x7

const (
	FlagWizard    = 0x00000010
	FlagDark      = 0x00000040
	FlagBuilder   = 0x00000080
	FlagGoing     = 0x00004000
	FlagConnected = 0x00008000
)

type Attribute struct {
	Number int
	Value  string
}

// Object is one database entry. Contents, Exits and Next form singly
// linked chains threaded through the objects themselves.
type Object struct {
	DBRef      DBRef
	Name       string
	Location   DBRef
	Contents   DBRef
	Exits      DBRef
	Link       DBRef // home for players and things, destination for exits
	Next       DBRef
	Owner      DBRef
	Flags      int
	LastAccess time.Time
	LastMod    time.Time
	Attrs      []Attribute
}

func (o *Object) ObjType() ObjectType { return ObjectType(o.Flags & TypeMask) }

func (o *Object) HasFlag(flag int) bool { return o.Flags&flag != 0 }

// IsGoing reports whether the object is queued for destruction.
func (o *Object) IsGoing() bool { return o.HasFlag(FlagGoing) }

// GetAttr returns attribute num, or "" when it is unset.
func (o *Object) GetAttr(num int) string {
	if i := o.attrIndex(num); i >= 0 {
		return o.Attrs[i].Value
	}
	return ""
}

// SetAttr stores value under num. An empty value clears the attribute.
func (o *Object) SetAttr(num int, value string) {
	i := o.attrIndex(num)
	switch {
	case i >= 0 && value == "":
		o.Attrs = slices.Delete(o.Attrs, i, i+1)
	case i >= 0:
		o.Attrs[i].Value = value
	case value != "":
		o.Attrs = append(o.Attrs, Attribute{Number: num, Value: value})
	}
}

func (o *Object) attrIndex(num int) int {
	return slices.IndexFunc(o.Attrs, func(a Attribute) bool { return a.Number == num })
}

// DisplayName strips the alias list from a name: "North;n" is "North".
func DisplayName(name string) string {
	display, _, _ := strings.Cut(name, ";")
	return display
}

// Database is the whole world. Size is one past the highest ref handed out.
type Database struct {
	Version int
	Size    int
	Objects map[DBRef]*Object
}

func NewDatabase() *Database {
	return &Database{Objects: make(map[DBRef]*Object)}
}
