package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type BlockKind string

const (
	BlockKindHoliday    BlockKind = "holiday"
	BlockKindRecess     BlockKind = "recess"
	BlockKindUnforeseen BlockKind = "unforeseen"
	BlockKindOther      BlockKind = "other"
)

// Block removes availability for an absolute time range. A block without a
// provider applies to every provider in the tenant.
type Block struct {
	bun.BaseModel `bun:"table:schedule_blocks"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	TenantID   string    `bun:"tenant_id,notnull"`
	ProviderID *string   `bun:"provider_id"`
	Kind       BlockKind `bun:"kind,notnull"`
	StartAt    time.Time `bun:"start_at,notnull"`
	EndAt      time.Time `bun:"end_at,notnull"`
	Reason     string    `bun:"reason"`
	CreatedBy  string    `bun:"created_by,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

func (b *Block) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if b.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			b.ID = id
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		b.UpdatedAt = now
	}
	return nil
}

func (b Block) Validate() error {
	if !b.StartAt.Before(b.EndAt) {
		return errors.New("start_at must be before end_at")
	}
	switch b.Kind {
	case BlockKindHoliday, BlockKindRecess, BlockKindUnforeseen, BlockKindOther:
	default:
		return errors.New("unknown block kind")
	}
	return nil
}

// AppliesTo reports whether the block removes availability for the provider.
func (b Block) AppliesTo(providerID string) bool {
	return b.ProviderID == nil || *b.ProviderID == providerID
}

func (b Block) Span() Slot {
	return Slot{StartAt: b.StartAt, EndAt: b.EndAt}
}

// CancellationReason is the system reason recorded on appointments the
// blocking engine cancels.
func (b Block) CancellationReason() string {
	reason := b.Reason
	if reason == "" {
		reason = "unspecified"
	}
	return "schedule block: " + reason
}
