package utils

import (
	"testing"

	"stayflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersonalizerResolve(t *testing.T) {
	personalizer := NewPersonalizer("https://stayflow.test")
	step := &models.SequenceStep{
		Position:     2,
		DayOffset:    3,
		TemplateName: "day3-mistakes",
		Subject:      "Los 3 errores que cometen los anfitriones",
	}

	t.Run("selects the archetype variant", func(t *testing.T) {
		contact := &models.Contact{
			Name:      "Ana",
			Archetype: models.ArchetypeSistematico,
		}

		rendered := personalizer.Resolve(contact, step)
		assert.Equal(t, "day3-mistakes", rendered.TemplateName)
		assert.Equal(t, "Tus procesos tienen un agujero (y no lo ves)", rendered.Subject)
		assert.Equal(t, "Ana", rendered.Data.Name)
	})

	t.Run("falls back to the default variant without an archetype", func(t *testing.T) {
		contact := &models.Contact{Name: "Ana"}

		rendered := personalizer.Resolve(contact, step)
		assert.Equal(t, step.Subject, rendered.Subject)
		assert.Equal(t, models.ArchetypeEquilibrado, rendered.Data.Archetype)
		assert.NotEmpty(t, rendered.Data.Hook)
	})

	t.Run("falls back on an unknown archetype", func(t *testing.T) {
		contact := &models.Contact{Name: "Ana", Archetype: "VISIONARIO"}

		rendered := personalizer.Resolve(contact, step)
		assert.Equal(t, step.Subject, rendered.Subject)
	})

	t.Run("defaults the recipient name", func(t *testing.T) {
		rendered := personalizer.Resolve(&models.Contact{}, step)
		assert.Equal(t, "Anfitrión", rendered.Data.Name)
	})

	t.Run("is stable across repeated calls", func(t *testing.T) {
		contact := &models.Contact{
			Name:             "Ana",
			Archetype:        models.ArchetypeEstratega,
			UnsubscribeToken: "tok-123",
		}

		first := personalizer.Resolve(contact, step)
		second := personalizer.Resolve(contact, step)
		assert.Equal(t, first, second)
		assert.Equal(t, "Ana", contact.Name)
	})

	t.Run("builds the unsubscribe link from the token", func(t *testing.T) {
		contact := &models.Contact{UnsubscribeToken: "tok-123"}

		rendered := personalizer.Resolve(contact, step)
		assert.Equal(t, "https://stayflow.test/unsubscribe/tok-123", rendered.Data.UnsubscribeURL)
	})

	t.Run("renders every known template", func(t *testing.T) {
		contact := &models.Contact{Name: "Ana", Archetype: models.ArchetypeEjecutor}
		for name := range emailTemplates {
			s := &models.SequenceStep{Position: 1, TemplateName: name, Subject: "Asunto"}
			rendered := personalizer.Resolve(contact, s)
			html, err := RenderTemplate(rendered.TemplateName, rendered.Data)
			require.NoError(t, err, name)
			assert.Contains(t, html, "Darse de baja")
		}
	})
}

func TestRenderTemplateUnknown(t *testing.T) {
	_, err := RenderTemplate("no-such-template", TemplateData{})
	assert.Error(t, err)
	assert.False(t, HasTemplate("no-such-template"))
	assert.True(t, HasTemplate("day3-mistakes"))
}
