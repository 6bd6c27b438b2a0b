package utils

import (
	"fmt"
	"sort"

	"stayflow/models"

	"gorm.io/gorm"
)

// Catalog holds the validated, active sequence definitions for one dispatcher
// invocation. It is loaded once and treated as immutable; campaign edits go
// through the admin endpoints and take effect on the next load.
type Catalog struct {
	byTrigger map[string]*models.SequenceDefinition
	byID      map[uint]*models.SequenceDefinition
}

// LoadCatalog reads all active definitions with their steps and validates
// them. A malformed definition or two active definitions for the same trigger
// source abort the load entirely (fail closed) - a campaign authoring bug
// must not let a sequence run with silently skipped steps.
func LoadCatalog(db *gorm.DB) (*Catalog, error) {
	var definitions []models.SequenceDefinition
	if err := db.Where("is_active = ?", true).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Find(&definitions).Error; err != nil {
		return nil, fmt.Errorf("failed to load sequence definitions: %w", err)
	}

	catalog := &Catalog{
		byTrigger: make(map[string]*models.SequenceDefinition, len(definitions)),
		byID:      make(map[uint]*models.SequenceDefinition, len(definitions)),
	}

	for i := range definitions {
		def := &definitions[i]
		if err := ValidateDefinition(def); err != nil {
			return nil, fmt.Errorf("sequence %q (id %d): %w", def.Name, def.ID, err)
		}
		if existing, ok := catalog.byTrigger[def.TriggerSource]; ok {
			return nil, fmt.Errorf("trigger source %q has two active sequences: %q and %q",
				def.TriggerSource, existing.Name, def.Name)
		}
		catalog.byTrigger[def.TriggerSource] = def
		catalog.byID[def.ID] = def
	}

	return catalog, nil
}

// Resolve returns the unique active definition for a trigger source, or nil
// when no active campaign matches. An unmatched trigger is expected, not an
// error.
func (c *Catalog) Resolve(triggerSource string) *models.SequenceDefinition {
	return c.byTrigger[triggerSource]
}

// DefinitionByID returns an active definition by primary key, or nil.
func (c *Catalog) DefinitionByID(id uint) *models.SequenceDefinition {
	return c.byID[id]
}

// ValidateDefinition checks the authoring invariants of a sequence: at least
// one step, unique positive positions, non-negative day offsets that strictly
// increase with position. Steps must already be ordered by position.
func ValidateDefinition(def *models.SequenceDefinition) error {
	if len(def.Steps) == 0 {
		return fmt.Errorf("definition has no steps")
	}

	steps := def.Steps
	if !sort.SliceIsSorted(steps, func(i, j int) bool { return steps[i].Position < steps[j].Position }) {
		sort.Slice(steps, func(i, j int) bool { return steps[i].Position < steps[j].Position })
	}

	seen := make(map[int]bool, len(steps))
	prevOffset := -1
	for _, step := range steps {
		if step.Position < 1 {
			return fmt.Errorf("step position %d must be >= 1", step.Position)
		}
		if seen[step.Position] {
			return fmt.Errorf("duplicate step position %d", step.Position)
		}
		seen[step.Position] = true

		if step.DayOffset < 0 {
			return fmt.Errorf("step %d has negative day offset %d", step.Position, step.DayOffset)
		}
		if step.DayOffset <= prevOffset {
			return fmt.Errorf("step %d day offset %d is not greater than the previous step's offset %d",
				step.Position, step.DayOffset, prevOffset)
		}
		prevOffset = step.DayOffset

		if step.TemplateName == "" {
			return fmt.Errorf("step %d has no template", step.Position)
		}
	}

	return nil
}

// FinalPosition returns the last step position of a definition. Steps are
// ordered by position after validation.
func FinalPosition(def *models.SequenceDefinition) int {
	if len(def.Steps) == 0 {
		return 0
	}
	return def.Steps[len(def.Steps)-1].Position
}
