package main

import (
	"fmt"
	"io"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/mini-leebee/leebee"
)

const stateTemplate = `{{- with .Snapshot -}}
{{ if .Transport.Playing }}playing{{ else }}stopped{{ end }} at {{ beats .Transport.Tick }} beats, {{ .Transport.Tempo }} BPM
{{- if .Transport.Loop.End }}, loop {{ beats .Transport.Loop.Start }}-{{ beats .Transport.Loop.End }}{{ end }}
{{- if .Halted }} (halted){{ end }}
{{ range .Tracks -}}
track {{ .ID }} {{ quote .Name }} gain {{ .Gain }} pan {{ .Pan }}
{{- if .Mute }} muted{{ end }}{{ if .Solo }} solo{{ end }}{{ if .Pattern }} pattern {{ .Pattern }}{{ end }}
{{ range $slot, $p := .Plugins }}  {{ $slot }}: {{ $p.Plugin }}{{ if $p.Faulted }} FAULTED: {{ $p.Fault }}{{ end }} [{{ join " " $p.Controls }}]
{{ end -}}
{{ end -}}
{{ range .Patterns -}}
pattern {{ .ID }} {{ beats .Length }} beats{{ if .Loop }} loop{{ end }}, {{ len .Events }} events
{{ end -}}
{{ range .Errors -}}
error #{{ .ID }} {{ .Command }}: {{ .Message }}
{{ end -}}
{{- end -}}
`

const pluginsTemplate = `{{ range . -}}
{{ .ID }} {{ quote .Name }} {{ .Class }}
{{ range .Ports }}{{ if eq (print .Kind) "control_in" }}  {{ .Index }} {{ .Symbol }} {{ .Default }} [{{ .Min }}, {{ .Max }}]
{{ end }}{{ end -}}
{{ end -}}
`

// newTemplate parses text with the sprig functions and a beats function
// converting ticks to beats.
func newTemplate(name, text string) (*template.Template, error) {
	funcs := sprig.TxtFuncMap()
	funcs["beats"] = func(ticks any) string {
		var t float64
		switch v := ticks.(type) {
		case float64:
			t = v
		case int64:
			t = float64(v)
		default:
			return fmt.Sprint(ticks)
		}
		return fmt.Sprintf("%g", t/leebee.TicksPerBeat)
	}
	tmpl, err := template.New(name).Funcs(funcs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf(`could not parse template "%v": %v`, name, err)
	}
	return tmpl, nil
}

func render(w io.Writer, name, text string, data any) error {
	tmpl, err := newTemplate(name, text)
	if err != nil {
		return err
	}
	return tmpl.Execute(w, data)
}
