package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Domain is the canonical record for a tracked domain name.
type Domain struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	CreationDate *time.Time         `bson:"creation_date,omitempty" json:"creation_date,omitempty"`
	ExpiryDate   *time.Time         `bson:"expiry_date,omitempty" json:"expiry_date,omitempty"`
	State        string             `bson:"state,omitempty" json:"state,omitempty"`
	ContactPhone []string           `bson:"contact_phone,omitempty" json:"contact_phone,omitempty"`
	ContactEmail string             `bson:"contact_email,omitempty" json:"contact_email,omitempty"`
	Registrar    string             `bson:"registrar,omitempty" json:"registrar,omitempty"`
	UpdatedDate  time.Time          `bson:"updated_date" json:"updated_date"`
	AddedAt      time.Time          `bson:"added_at" json:"added_at"`
}

// Fragment is the result of normalizing one registry response. Nil fields were
// absent from the response (or could not be parsed) and must not overwrite
// stored values.
type Fragment struct {
	CreationDate *time.Time
	ExpiryDate   *time.Time
	State        *string
	ContactPhone []string
	ContactEmail *string
	Registrar    *string
	UpdatedDate  time.Time
}

// SetFields returns the $set document for a partial update: updated_date plus
// every field present in the fragment.
func (f Fragment) SetFields() bson.M {
	set := bson.M{"updated_date": f.UpdatedDate}

	if f.CreationDate != nil {
		set["creation_date"] = *f.CreationDate
	}
	if f.ExpiryDate != nil {
		set["expiry_date"] = *f.ExpiryDate
	}
	if f.State != nil {
		set["state"] = *f.State
	}
	if f.ContactPhone != nil {
		set["contact_phone"] = f.ContactPhone
	}
	if f.ContactEmail != nil {
		set["contact_email"] = *f.ContactEmail
	}
	if f.Registrar != nil {
		set["registrar"] = *f.Registrar
	}

	return set
}

// Apply merges the present fields of the fragment into d.
func (f Fragment) Apply(d *Domain) {
	if d == nil {
		return
	}

	d.UpdatedDate = f.UpdatedDate
	if f.CreationDate != nil {
		created := *f.CreationDate
		d.CreationDate = &created
	}
	if f.ExpiryDate != nil {
		expiry := *f.ExpiryDate
		d.ExpiryDate = &expiry
	}
	if f.State != nil {
		d.State = *f.State
	}
	if f.ContactPhone != nil {
		d.ContactPhone = append([]string(nil), f.ContactPhone...)
	}
	if f.ContactEmail != nil {
		d.ContactEmail = *f.ContactEmail
	}
	if f.Registrar != nil {
		d.Registrar = *f.Registrar
	}
}

// NewDomain builds a record for name from a fresh fragment.
func NewDomain(name string, fragment Fragment, now time.Time) Domain {
	d := Domain{
		Name:    name,
		AddedAt: now,
	}
	fragment.Apply(&d)

	return d
}
