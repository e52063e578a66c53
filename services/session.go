package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"stylemorphapi/models"
)

var (
	ErrLastOutfit     = errors.New("at least one outfit is required")
	ErrOutfitNotFound = errors.New("outfit not found")
	ErrGarmentIndex   = errors.New("garment index out of range")
	ErrBatchInFlight  = errors.New("a batch is already generating for this session")
)

// Session holds one user's photo, outfits and the results of the latest batch.
// There is always at least one outfit. Outfit IDs come from a counter and are
// never handed out twice.
type Session struct {
	mu sync.Mutex

	id           string
	createdAt    time.Time
	userPhoto    *models.ImageAsset
	outfits      []models.OutfitSpec
	results      []models.GenerationOutcome
	generating   bool
	lastError    string
	lastOutfitID int
}

func NewSession(id string) *Session {
	s := &Session{id: id, createdAt: time.Now()}
	s.outfits = []models.OutfitSpec{{ID: s.nextOutfitID()}}
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

func (s *Session) nextOutfitID() string {
	s.lastOutfitID++
	return strconv.Itoa(s.lastOutfitID)
}

func (s *Session) SetUserPhoto(photo models.ImageAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userPhoto = &photo
}

func (s *Session) ClearUserPhoto() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userPhoto = nil
}

func (s *Session) UserPhoto() *models.ImageAsset {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userPhoto == nil {
		return nil
	}
	photo := *s.userPhoto
	return &photo
}

func (s *Session) AddOutfit() models.OutfitSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	outfit := models.OutfitSpec{ID: s.nextOutfitID()}
	s.outfits = append(s.outfits, outfit)
	return outfit.Clone()
}

// RemoveOutfit drops the outfit and its result. The last outfit cannot be removed.
func (s *Session) RemoveOutfit(outfitID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.outfitIndex(outfitID)
	if index < 0 {
		return ErrOutfitNotFound
	}
	if len(s.outfits) <= 1 {
		return ErrLastOutfit
	}
	s.outfits = append(s.outfits[:index:index], s.outfits[index+1:]...)

	results := s.results[:0:0]
	for _, result := range s.results {
		if result.OutfitID != outfitID {
			results = append(results, result)
		}
	}
	s.results = results
	return nil
}

func (s *Session) AddGarment(outfitID string, garment models.ImageAsset) (models.OutfitSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.outfitIndex(outfitID)
	if index < 0 {
		return models.OutfitSpec{}, ErrOutfitNotFound
	}
	outfit := s.outfits[index].Clone()
	outfit.Garments = append(outfit.Garments, garment)
	s.outfits[index] = outfit
	return outfit.Clone(), nil
}

func (s *Session) RemoveGarment(outfitID string, garmentIndex int) (models.OutfitSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.outfitIndex(outfitID)
	if index < 0 {
		return models.OutfitSpec{}, ErrOutfitNotFound
	}
	outfit := s.outfits[index].Clone()
	if garmentIndex < 0 || garmentIndex >= len(outfit.Garments) {
		return models.OutfitSpec{}, ErrGarmentIndex
	}
	outfit.Garments = append(outfit.Garments[:garmentIndex], outfit.Garments[garmentIndex+1:]...)
	s.outfits[index] = outfit
	return outfit.Clone(), nil
}

func (s *Session) SetInstructions(outfitID string, instructions string) (models.OutfitSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.outfitIndex(outfitID)
	if index < 0 {
		return models.OutfitSpec{}, ErrOutfitNotFound
	}
	s.outfits[index].Instructions = instructions
	return s.outfits[index].Clone(), nil
}

func (s *Session) Outfits() []models.OutfitSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneOutfits()
}

func (s *Session) Results() []models.GenerationOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.GenerationOutcome(nil), s.results...)
}

func (s *Session) Result(outfitID string) (models.GenerationOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, result := range s.results {
		if result.OutfitID == outfitID {
			return result, true
		}
	}
	return models.GenerationOutcome{}, false
}

func (s *Session) Generating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generating
}

// Generate runs a batch over a snapshot of the outfits. Validation failures
// leave the previous results in place. Otherwise results are cleared at the
// start and replaced wholesale when the batch settles. Overlapping batches
// on the same session are rejected.
func (s *Session) Generate(ctx context.Context, runner BatchRunner) ([]models.GenerationOutcome, error) {
	s.mu.Lock()
	if s.generating {
		s.mu.Unlock()
		return nil, ErrBatchInFlight
	}
	var photo *models.ImageAsset
	if s.userPhoto != nil {
		p := *s.userPhoto
		photo = &p
	}
	outfits := s.cloneOutfits()
	if err := ValidateTryOnBatch(photo, outfits); err != nil {
		s.lastError = err.Error()
		s.mu.Unlock()
		return nil, err
	}
	s.generating = true
	s.results = nil
	s.lastError = ""
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.generating = false
		s.mu.Unlock()
	}()

	outcomes, err := runner.RunBatch(ctx, photo, outfits)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastError = err.Error()
		return nil, err
	}
	s.results = outcomes
	return append([]models.GenerationOutcome(nil), outcomes...), nil
}

func (s *Session) View() models.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := models.SessionView{
		ID:         s.id,
		Outfits:    make([]models.OutfitView, 0, len(s.outfits)),
		Results:    append([]models.GenerationOutcome{}, s.results...),
		Generating: s.generating,
		LastError:  s.lastError,
	}
	if s.userPhoto != nil {
		info := s.userPhoto.Info()
		view.UserPhoto = &info
	}
	for _, outfit := range s.outfits {
		view.Outfits = append(view.Outfits, outfit.View())
	}
	return view
}

func (s *Session) outfitIndex(outfitID string) int {
	for i, outfit := range s.outfits {
		if outfit.ID == outfitID {
			return i
		}
	}
	return -1
}

func (s *Session) cloneOutfits() []models.OutfitSpec {
	outfits := make([]models.OutfitSpec, 0, len(s.outfits))
	for _, outfit := range s.outfits {
		outfits = append(outfits, outfit.Clone())
	}
	return outfits
}
