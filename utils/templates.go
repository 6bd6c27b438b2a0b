package utils

import (
	"bytes"
	"fmt"
	"html/template"
)

// TemplateData is the context handed to every sequence template.
type TemplateData struct {
	Name           string
	Subject        string
	Hook           string
	Archetype      string
	Interests      []string
	Source         string
	CTALabel       string
	CTAURL         string
	UnsubscribeURL string
	Year           int
}

// Embedded email templates
var emailTemplates = map[string]string{
	"welcome": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .content { margin: 20px 0; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>Bienvenido, {{.Name}}</h2>
    </div>

    <div class="content">
        <p>{{.Hook}}</p>
        <p>Durante los próximos días te enviaremos lo mejor que sabemos sobre gestión de alojamientos turísticos.</p>
    </div>

    <div class="footer">
        <p><a href="{{.UnsubscribeURL}}">Darse de baja</a></p>
        <p>© {{.Year}} Stayflow. All rights reserved.</p>
    </div>
</body>
</html>`,

	"welcome-test": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .content { margin: 20px 0; }
        .archetype { font-size: 24px; font-weight: bold; color: #3498db; margin: 20px 0; text-align: center; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>Tu perfil de anfitrión</h2>
    </div>

    <div class="content">
        <p>Hola {{.Name}},</p>
        <p>{{.Hook}}</p>

        <div class="archetype">{{.Archetype}}</div>

        {{if .Interests}}<p>Nos has contado que te interesa: {{range $i, $interest := .Interests}}{{if $i}}, {{end}}{{$interest}}{{end}}.</p>{{end}}
        <p style="text-align: center;"><a href="{{.CTAURL}}">{{.CTALabel}}</a></p>
    </div>

    <div class="footer">
        <p><a href="{{.UnsubscribeURL}}">Darse de baja</a></p>
        <p>© {{.Year}} Stayflow. All rights reserved.</p>
    </div>
</body>
</html>`,

	"day3-mistakes": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .content { margin: 20px 0; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>{{.Subject}}</h2>
    </div>

    <div class="content">
        <p>Hola {{.Name}},</p>
        <p>{{.Hook}}</p>
        <p style="text-align: center;"><a href="{{.CTAURL}}">{{.CTALabel}}</a></p>
    </div>

    <div class="footer">
        <p><a href="{{.UnsubscribeURL}}">Darse de baja</a></p>
        <p>© {{.Year}} Stayflow. All rights reserved.</p>
    </div>
</body>
</html>`,

	"day7-case-study": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .content { margin: 20px 0; }
        .quote { border-left: 3px solid #3498db; padding-left: 15px; color: #555; font-style: italic; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>{{.Subject}}</h2>
    </div>

    <div class="content">
        <p>Hola {{.Name}},</p>
        <p>{{.Hook}}</p>
        <p class="quote">"Desde que automaticé la guía del huésped, dejé de responder las mismas preguntas diez veces al día."</p>
        <p style="text-align: center;"><a href="{{.CTAURL}}">{{.CTALabel}}</a></p>
    </div>

    <div class="footer">
        <p><a href="{{.UnsubscribeURL}}">Darse de baja</a></p>
        <p>© {{.Year}} Stayflow. All rights reserved.</p>
    </div>
</body>
</html>`,

	"day10-trial": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .content { margin: 20px 0; }
        .button { display: inline-block; padding: 10px 20px; background-color: #3498db; color: white; text-decoration: none; border-radius: 4px; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>{{.Subject}}</h2>
    </div>

    <div class="content">
        <p>Hola {{.Name}},</p>
        <p>{{.Hook}}</p>
        <p style="text-align: center;">
            <a href="{{.CTAURL}}" class="button">{{.CTALabel}}</a>
        </p>
    </div>

    <div class="footer">
        <p><a href="{{.UnsubscribeURL}}">Darse de baja</a></p>
        <p>© {{.Year}} Stayflow. All rights reserved.</p>
    </div>
</body>
</html>`,

	"day14-urgency": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #e74c3c; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .content { margin: 20px 0; }
        .button { display: inline-block; padding: 10px 20px; background-color: #e74c3c; color: white; text-decoration: none; border-radius: 4px; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>{{.Subject}}</h2>
    </div>

    <div class="content">
        <p>Hola {{.Name}},</p>
        <p>{{.Hook}}</p>
        <p style="text-align: center;">
            <a href="{{.CTAURL}}" class="button">{{.CTALabel}}</a>
        </p>
    </div>

    <div class="footer">
        <p><a href="{{.UnsubscribeURL}}">Darse de baja</a></p>
        <p>© {{.Year}} Stayflow. All rights reserved.</p>
    </div>
</body>
</html>`,

	"lead-magnet-download": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .content { margin: 20px 0; }
        .button { display: inline-block; padding: 10px 20px; background-color: #27ae60; color: white; text-decoration: none; border-radius: 4px; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>Aquí tienes tu recurso</h2>
    </div>

    <div class="content">
        <p>Hola {{.Name}},</p>
        <p>{{.Hook}}</p>
        <p style="text-align: center;">
            <a href="{{.CTAURL}}" class="button">{{.CTALabel}}</a>
        </p>
    </div>

    <div class="footer">
        <p><a href="{{.UnsubscribeURL}}">Darse de baja</a></p>
        <p>© {{.Year}} Stayflow. All rights reserved.</p>
    </div>
</body>
</html>`,
}

// RenderTemplate renders a sequence template by name.
func RenderTemplate(name string, data TemplateData) (string, error) {
	tmplContent, ok := emailTemplates[name]
	if !ok {
		return "", fmt.Errorf("template '%s' not found", name)
	}

	tmpl, err := template.New("email").Parse(tmplContent)
	if err != nil {
		return "", fmt.Errorf("error parsing template: %v", err)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("error executing template: %v", err)
	}
	return body.String(), nil
}

// HasTemplate reports whether a template name is known. Used by the admin
// endpoints so a definition never references a template that cannot render.
func HasTemplate(name string) bool {
	_, ok := emailTemplates[name]
	return ok
}
