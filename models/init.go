package models

import "gorm.io/gorm"

// CreateDefaultSequences seeds the stock nurturing campaigns on first boot.
// Existing definitions are left untouched, so operators can deactivate or
// replace them through the admin endpoints without the seed fighting back.
func CreateDefaultSequences(db *gorm.DB) error {
	defaultSequences := []SequenceDefinition{
		{
			Name:          "quiz-nurture",
			Description:   "Post-quiz nurturing sequence personalized by host archetype",
			TriggerSource: TriggerQuizCompleted,
			IsActive:      true,
			Steps: []SequenceStep{
				{Position: 1, DayOffset: 0, TemplateName: "welcome-test", Subject: "Tu perfil de anfitrión completo"},
				{Position: 2, DayOffset: 3, TemplateName: "day3-mistakes", Subject: "Los 3 errores que cometen los anfitriones"},
				{Position: 3, DayOffset: 7, TemplateName: "day7-case-study", Subject: "Cómo María duplicó sus reservas"},
				{Position: 4, DayOffset: 10, TemplateName: "day10-trial", Subject: "Prueba la plataforma 15 días gratis"},
				{Position: 5, DayOffset: 14, TemplateName: "day14-urgency", Subject: "Última oportunidad para tu prueba"},
			},
		},
		{
			Name:          "welcome-nurture",
			Description:   "Welcome sequence for new subscribers",
			TriggerSource: TriggerSubscriberCreated,
			IsActive:      true,
			Steps: []SequenceStep{
				{Position: 1, DayOffset: 0, TemplateName: "welcome", Subject: "Bienvenido a bordo"},
				{Position: 2, DayOffset: 3, TemplateName: "day3-mistakes", Subject: "Los 3 errores que cometen los anfitriones"},
				{Position: 3, DayOffset: 7, TemplateName: "day7-case-study", Subject: "Cómo María duplicó sus reservas"},
			},
		},
		{
			Name:          "lead-magnet-nurture",
			Description:   "Delivery plus follow-up for resource downloads",
			TriggerSource: TriggerResourceDownload,
			IsActive:      true,
			Steps: []SequenceStep{
				{Position: 1, DayOffset: 0, TemplateName: "lead-magnet-download", Subject: "Aquí tienes tu recurso"},
				{Position: 2, DayOffset: 2, TemplateName: "day3-mistakes", Subject: "Los 3 errores que cometen los anfitriones"},
				{Position: 3, DayOffset: 6, TemplateName: "day7-case-study", Subject: "Cómo María duplicó sus reservas"},
				{Position: 4, DayOffset: 8, TemplateName: "day10-trial", Subject: "Prueba la plataforma 15 días gratis"},
			},
		},
	}

	for _, sequence := range defaultSequences {
		if err := db.FirstOrCreate(&sequence, "name = ?", sequence.Name).Error; err != nil {
			return err
		}
	}
	return nil
}
