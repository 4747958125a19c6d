package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IDs are generated application-side so the models work the same against
// postgres and the sqlite test database. v7 keeps primary keys in
// insertion order.

func assignID(id *uuid.UUID) (err error) {
	if *id == uuid.Nil {
		*id, err = uuid.NewV7()
	}
	return err
}

func (u *User) BeforeCreate(*gorm.DB) error         { return assignID(&u.ID) }
func (g *Gallery) BeforeCreate(*gorm.DB) error      { return assignID(&g.ID) }
func (p *ArtProduct) BeforeCreate(*gorm.DB) error   { return assignID(&p.ID) }
func (e *AuctionEvent) BeforeCreate(*gorm.DB) error { return assignID(&e.ID) }
func (i *AuctionItem) BeforeCreate(*gorm.DB) error  { return assignID(&i.ID) }
func (b *AuctionBid) BeforeCreate(*gorm.DB) error   { return assignID(&b.ID) }
func (n *Notification) BeforeCreate(*gorm.DB) error { return assignID(&n.ID) }
func (o *Order) BeforeCreate(*gorm.DB) error        { return assignID(&o.ID) }
