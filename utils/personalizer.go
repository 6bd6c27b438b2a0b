package utils

import (
	"fmt"
	"time"

	"stayflow/models"
)

// RenderedEmail is the personalized output for one (contact, step) pair:
// which template to render, under which subject, with which context.
type RenderedEmail struct {
	TemplateName string
	Subject      string
	Data         TemplateData
}

// archetypeVariant holds the per-archetype content for a personalized step.
type archetypeVariant struct {
	Subject string
	Hook    string
}

// Content variants keyed by template name, then archetype. Steps without an
// entry here use the step's authored subject and the default hook.
var archetypeContent = map[string]map[string]archetypeVariant{
	"day3-mistakes": {
		models.ArchetypeEstratega: {
			Subject: "El error que frena tu estrategia de precios",
			Hook:    "Como estratega, seguro ya mides tu ocupación. Pero hay tres errores de posicionamiento que vemos una y otra vez en perfiles como el tuyo.",
		},
		models.ArchetypeSistematico: {
			Subject: "Tus procesos tienen un agujero (y no lo ves)",
			Hook:    "Tienes checklists para todo, pero los tres errores más caros de los anfitriones sistemáticos no están en ninguna checklist.",
		},
		models.ArchetypeDiferenciador: {
			Subject: "Destacar no basta: los 3 errores del anfitrión creativo",
			Hook:    "Tu alojamiento ya destaca. Estos tres errores hacen que esa diferencia no se convierta en reservas.",
		},
		models.ArchetypeEjecutor: {
			Subject: "Rápido no siempre es rentable",
			Hook:    "Resuelves todo en el momento, pero estos tres errores de los anfitriones ejecutores cuestan dinero a medio plazo.",
		},
		models.ArchetypeResolutor: {
			Subject: "Apagar fuegos no escala",
			Hook:    "Eres quien resuelve cuando algo falla. Estos tres errores hacen que los fuegos vuelvan a encenderse.",
		},
		models.ArchetypeExperiencial: {
			Subject: "La experiencia del huésped empieza antes del check-in",
			Hook:    "Cuidas cada detalle de la estancia, pero los tres errores más comunes ocurren antes de que el huésped llegue.",
		},
		models.ArchetypeImprovisador: {
			Subject: "3 errores que la improvisación no perdona",
			Hook:    "La flexibilidad es tu fuerte, pero hay tres cosas que no se pueden improvisar en un alojamiento turístico.",
		},
	},
	"day7-case-study": {
		models.ArchetypeEstratega: {
			Subject: "Caso real: de 62% a 89% de ocupación",
			Hook:    "María gestionaba tres apartamentos en Valencia con una ocupación del 62%. Así reorganizó su estrategia.",
		},
		models.ArchetypeSistematico: {
			Subject: "Caso real: el sistema que eliminó el 80% de las preguntas",
			Hook:    "María documentó cada rincón de sus apartamentos en una guía digital. Las preguntas repetidas cayeron un 80%.",
		},
	},
}

// Default variant content when the contact has no archetype or the step has
// no variant for it. The resolver must fall back, never fail the send.
var defaultHooks = map[string]string{
	"welcome":              "Gracias por unirte. Estás a punto de descubrir cómo los mejores anfitriones gestionan sus alojamientos.",
	"welcome-test":         "Hemos analizado tus respuestas y este es tu perfil de anfitrión. A partir de él personalizaremos todo lo que te enviemos.",
	"day3-mistakes":        "Después de analizar cientos de alojamientos, estos son los tres errores que más reservas cuestan a los anfitriones.",
	"day7-case-study":      "María gestionaba tres apartamentos en Valencia. Así transformó su operativa en tres meses.",
	"day10-trial":          "Llevas unos días recibiendo nuestros consejos. Es el momento de probar la plataforma con tus propios alojamientos, gratis durante 15 días.",
	"day14-urgency":        "Tu acceso de prueba expira pronto. Si configuras tu primera guía hoy, tus próximos huéspedes ya la recibirán.",
	"lead-magnet-download": "Aquí tienes el recurso que pediste. Descárgalo y tenlo a mano para tu próxima reserva.",
}

var templateCTAs = map[string]struct {
	Label string
	Path  string
}{
	"welcome":              {"Ver la guía de inicio", "/academy/primeros-pasos"},
	"welcome-test":         {"Ver tu informe completo", "/perfil/informe"},
	"day3-mistakes":        {"Leer el artículo completo", "/blog/errores-anfitriones"},
	"day7-case-study":      {"Leer el caso completo", "/blog/caso-maria"},
	"day10-trial":          {"Empezar prueba gratuita", "/registro?trial=15d"},
	"day14-urgency":        {"Activar mi cuenta ahora", "/registro?trial=15d&last=1"},
	"lead-magnet-download": {"Descargar recurso", "/recursos/descarga"},
}

// Personalizer maps a contact's behavioral attributes to a content variant
// and template context for a step. It is a pure function of its inputs: no
// storage access, no mutation, safe to call repeatedly for retries.
type Personalizer struct {
	BaseURL string
}

func NewPersonalizer(baseURL string) *Personalizer {
	return &Personalizer{BaseURL: baseURL}
}

// Resolve selects the content variant for a (contact, step) pair. A missing
// or unknown archetype falls back to the step's authored subject and the
// default hook for the template.
func (p *Personalizer) Resolve(contact *models.Contact, step *models.SequenceStep) RenderedEmail {
	subject := step.Subject
	hook := defaultHooks[step.TemplateName]

	if variants, ok := archetypeContent[step.TemplateName]; ok {
		if variant, ok := variants[contact.Archetype]; ok {
			subject = variant.Subject
			hook = variant.Hook
		}
	}

	name := contact.Name
	if name == "" {
		name = "Anfitrión"
	}

	archetype := contact.Archetype
	if archetype == "" {
		archetype = models.ArchetypeEquilibrado
	}

	cta := templateCTAs[step.TemplateName]

	return RenderedEmail{
		TemplateName: step.TemplateName,
		Subject:      subject,
		Data: TemplateData{
			Name:           name,
			Subject:        subject,
			Hook:           hook,
			Archetype:      archetype,
			Interests:      contact.InterestNames(),
			Source:         contact.Source,
			CTALabel:       cta.Label,
			CTAURL:         fmt.Sprintf("%s%s", p.BaseURL, cta.Path),
			UnsubscribeURL: fmt.Sprintf("%s/unsubscribe/%s", p.BaseURL, contact.UnsubscribeToken),
			Year:           time.Now().Year(),
		},
	}
}
