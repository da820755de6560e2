package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hive-services/backend/internal/apperrors"
	"github.com/hive-services/backend/internal/models"
)

type PhotoInput struct {
	Kind models.PhotoKind `json:"kind" validate:"required,oneof=before after"`
	URL  string           `json:"url" validate:"required,url,max=2048"`
}

type PhotoPage struct {
	Kind    models.PhotoKind `json:"kind"`
	Index   int              `json:"index"`
	URL     string           `json:"url"`
	Total   int              `json:"total"`
	HasPrev bool             `json:"has_prev"`
	HasNext bool             `json:"has_next"`
}

// PhotoTracker records before/after evidence. Photo lists only grow.
type PhotoTracker struct {
	Requests *RequestService
	Logger   zerolog.Logger
}

func (p *PhotoTracker) Get(ctx context.Context, actor models.Actor, requestID string) (models.PhotoDocumentation, error) {
	r, err := p.Requests.load(ctx, actor, requestID)
	if err != nil {
		return models.PhotoDocumentation{}, err
	}
	if r.PhotoDocumentation == nil {
		return models.PhotoDocumentation{}, apperrors.NotFound("photo documentation")
	}
	return r.PhotoDocumentation.Clone(), nil
}

func (p *PhotoTracker) Append(ctx context.Context, actor models.Actor, requestID string, in PhotoInput) (models.PhotoDocumentation, error) {
	in.URL = strings.TrimSpace(in.URL)
	if err := p.Requests.Validator.Struct(in); err != nil {
		return models.PhotoDocumentation{}, apperrors.Validation("%s", validationMessage(err))
	}
	r, err := p.Requests.load(ctx, actor, requestID)
	if err != nil {
		return models.PhotoDocumentation{}, err
	}
	if err := p.canUpload(ctx, actor, r); err != nil {
		return models.PhotoDocumentation{}, err
	}
	if r.Status != models.StatusInProgress && r.Status != models.StatusCompleted {
		return models.PhotoDocumentation{}, apperrors.InvalidTransition("photos can be added once work has started (status is %s)", r.Status)
	}

	now := p.Requests.Clock.now()
	out, err := p.Requests.Repo.MutatePhotos(ctx, requestID, func(cur *models.PhotoDocumentation) (*models.PhotoDocumentation, error) {
		var next models.PhotoDocumentation
		if cur == nil {
			next = models.PhotoDocumentation{
				BeforePhotos: []string{},
				AfterPhotos:  []string{},
				UploadDate:   now.In(location(p.Requests.Location)).Format("2006-01-02"),
				UploadedBy:   actor.ID,
			}
		} else {
			next = cur.Clone()
		}
		if in.Kind == models.PhotoBefore {
			next.BeforePhotos = append(next.BeforePhotos, in.URL)
		} else {
			next.AfterPhotos = append(next.AfterPhotos, in.URL)
		}
		return &next, nil
	})
	if err != nil {
		return models.PhotoDocumentation{}, storeError(err, "request")
	}
	p.Logger.Info().Str("request_id", requestID).Str("kind", string(in.Kind)).Str("actor_id", actor.ID).Msg("photo added")
	return *out, nil
}

// Page returns the photo at index within the kind's list.
func (p *PhotoTracker) Page(ctx context.Context, actor models.Actor, requestID string, kind models.PhotoKind, index int) (PhotoPage, error) {
	if !kind.Valid() {
		return PhotoPage{}, apperrors.Validation("unknown photo kind %q", kind)
	}
	doc, err := p.Get(ctx, actor, requestID)
	if err != nil {
		return PhotoPage{}, err
	}
	pager := NewPager(doc.List(kind))
	if !pager.Seek(index) {
		return PhotoPage{}, apperrors.NotFound("photo")
	}
	url, _ := pager.Current()
	return PhotoPage{
		Kind:    kind,
		Index:   pager.Index(),
		URL:     url,
		Total:   pager.Len(),
		HasPrev: pager.HasPrev(),
		HasNext: pager.HasNext(),
	}, nil
}

func (p *PhotoTracker) canUpload(ctx context.Context, actor models.Actor, r models.ServiceRequest) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleManager:
		if OwnsAsManager(actor, r) {
			return nil
		}
	case models.RoleCollaborator:
		ok, err := p.Requests.Resolver.AssignedCollaborator(ctx, r, actor.ID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return apperrors.InvalidTransition("role %s may not add photos to request %s", actor.Role, r.ID)
}

// Pager walks a photo list without wrapping around at either end.
type Pager struct {
	items []string
	idx   int
}

func NewPager(items []string) *Pager {
	return &Pager{items: items}
}

func (p *Pager) Len() int   { return len(p.items) }
func (p *Pager) Index() int { return p.idx }

func (p *Pager) Current() (string, bool) {
	if p.idx < 0 || p.idx >= len(p.items) {
		return "", false
	}
	return p.items[p.idx], true
}

func (p *Pager) HasNext() bool { return p.idx+1 < len(p.items) }
func (p *Pager) HasPrev() bool { return p.idx > 0 && len(p.items) > 0 }

// Next advances one photo. It returns false and stays put at the last photo.
func (p *Pager) Next() bool {
	if !p.HasNext() {
		return false
	}
	p.idx++
	return true
}

// Prev moves back one photo. It returns false and stays put at the first photo.
func (p *Pager) Prev() bool {
	if !p.HasPrev() {
		return false
	}
	p.idx--
	return true
}

func (p *Pager) Seek(index int) bool {
	if index < 0 || index >= len(p.items) {
		return false
	}
	p.idx = index
	return true
}
