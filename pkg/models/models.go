package models

import (
	"fmt"
	"time"

	"github.com/workledger/workledger/pkg/constants"
)

// Kind names an entity collection. The value doubles as table name and URL segment.
type Kind string

const (
	KindCompany  Kind = "companies"
	KindEmployee Kind = "employees"
	KindDocument Kind = "documents"
)

// Kinds lists every entity kind in a stable order.
var Kinds = []Kind{KindCompany, KindEmployee, KindDocument}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", constants.ErrUnknownKind, s)
}

// Entity is implemented by every persisted model.
type Entity interface {
	EntityKind() Kind
	EntityID() int64
	SetEntityID(id int64)
	Touch(now time.Time)
}

// New returns an empty entity of the given kind.
func New(kind Kind) (Entity, error) {
	switch kind {
	case KindCompany:
		return &Company{}, nil
	case KindEmployee:
		return &Employee{}, nil
	case KindDocument:
		return &Document{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", constants.ErrUnknownKind, kind)
	}
}

// Timestamps is embedded by every entity.
type Timestamps struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (t *Timestamps) Touch(now time.Time) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}

type Company struct {
	ID       int64  `json:"id" gorm:"primaryKey"`
	Name     string `json:"name" gorm:"not null"`
	Industry string `json:"industry"`
	Country  string `json:"country"`
	Timestamps
}

func (*Company) TableName() string      { return string(KindCompany) }
func (*Company) EntityKind() Kind       { return KindCompany }
func (c *Company) EntityID() int64      { return c.ID }
func (c *Company) SetEntityID(id int64) { c.ID = id }

type Employee struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	CompanyID int64     `json:"companyId" gorm:"index"`
	FirstName string    `json:"firstName" gorm:"not null"`
	LastName  string    `json:"lastName" gorm:"not null"`
	Email     string    `json:"email" gorm:"index"`
	Position  string    `json:"position"`
	HiredAt   time.Time `json:"hiredAt"`
	Active    bool      `json:"active"`
	Timestamps
}

func (*Employee) TableName() string      { return string(KindEmployee) }
func (*Employee) EntityKind() Kind       { return KindEmployee }
func (e *Employee) EntityID() int64      { return e.ID }
func (e *Employee) SetEntityID(id int64) { e.ID = id }

// Document is metadata for a file kept in object storage; ObjectKey locates the bytes.
type Document struct {
	ID          int64  `json:"id" gorm:"primaryKey"`
	CompanyID   int64  `json:"companyId" gorm:"index"`
	EmployeeID  int64  `json:"employeeId" gorm:"index"`
	Title       string `json:"title" gorm:"not null"`
	ObjectKey   string `json:"objectKey"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
	Timestamps
}

func (*Document) TableName() string      { return string(KindDocument) }
func (*Document) EntityKind() Kind       { return KindDocument }
func (d *Document) EntityID() int64      { return d.ID }
func (d *Document) SetEntityID(id int64) { d.ID = id }

// Page selects a window of a List result ordered by ID.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = constants.DefaultPageLimit
	}
	if p.Limit > constants.MaxPageLimit {
		p.Limit = constants.MaxPageLimit
	}
	return p
}

// Validate checks the fields every store relies on.
func Validate(e Entity) error {
	switch v := e.(type) {
	case *Company:
		if v.Name == "" {
			return fmt.Errorf("%w: company name is required", constants.ErrInvalidEntity)
		}
	case *Employee:
		if v.FirstName == "" || v.LastName == "" {
			return fmt.Errorf("%w: employee first and last name are required", constants.ErrInvalidEntity)
		}
	case *Document:
		if v.Title == "" {
			return fmt.Errorf("%w: document title is required", constants.ErrInvalidEntity)
		}
	case nil:
		return fmt.Errorf("%w: nil entity", constants.ErrInvalidEntity)
	default:
		return fmt.Errorf("%w: %T", constants.ErrUnknownKind, e)
	}
	if e.EntityID() < 0 {
		return fmt.Errorf("%w: negative id", constants.ErrInvalidEntity)
	}
	return nil
}

// TimestampsOf returns the timestamps embedded in e, or nil for unknown types.
func TimestampsOf(e Entity) *Timestamps {
	switch v := e.(type) {
	case *Company:
		return &v.Timestamps
	case *Employee:
		return &v.Timestamps
	case *Document:
		return &v.Timestamps
	}
	return nil
}

// Clone returns a shallow copy of e. Entities hold no reference fields, so the copy
// shares nothing with the original.
func Clone(e Entity) Entity {
	switch v := e.(type) {
	case *Company:
		c := *v
		return &c
	case *Employee:
		c := *v
		return &c
	case *Document:
		c := *v
		return &c
	}
	return e
}
