package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// assignID fills a zero primary key so rows created outside Postgres (sqlite,
// fixtures) still get a stable uuid.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (p *Package) BeforeCreate(*gorm.DB) error            { assignID(&p.ID); return nil }
func (u *User) BeforeCreate(*gorm.DB) error               { assignID(&u.ID); return nil }
func (o *Order) BeforeCreate(*gorm.DB) error              { assignID(&o.ID); return nil }
func (i *Invoice) BeforeCreate(*gorm.DB) error            { assignID(&i.ID); return nil }
func (p *PaymentTransaction) BeforeCreate(*gorm.DB) error { assignID(&p.ID); return nil }
func (s *Server) BeforeCreate(*gorm.DB) error             { assignID(&s.ID); return nil }
func (e *OutboxEvent) BeforeCreate(*gorm.DB) error        { assignID(&e.ID); return nil }
func (d *OutboxDLQ) BeforeCreate(*gorm.DB) error          { assignID(&d.ID); return nil }
