// Package pdf fills contract PDF forms.
package pdf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("pdf")

type textField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type checkBox struct {
	Name  string `json:"name"`
	Value bool   `json:"value"`
}

type form struct {
	TextFields []textField `json:"textfield,omitempty"`
	CheckBoxes []checkBox  `json:"checkbox,omitempty"`
}

type formFile struct {
	Forms []form `json:"forms"`
}

// formJSON renders fields in pdfcpu's form-fill format, sorted by name.
func formJSON(fields map[string]any) ([]byte, error) {
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)

	var f form
	for _, n := range names {
		switch v := fields[n].(type) {
		case bool:
			f.CheckBoxes = append(f.CheckBoxes, checkBox{Name: n, Value: v})
		case string:
			f.TextFields = append(f.TextFields, textField{Name: n, Value: v})
		default:
			f.TextFields = append(f.TextFields, textField{Name: n, Value: fmt.Sprint(v)})
		}
	}
	return json.Marshal(formFile{Forms: []form{f}})
}

// Filler fills AcroForm fields with pdfcpu.
type Filler struct {
	conf *model.Configuration
}

func NewFiller() *Filler {
	return &Filler{conf: model.NewDefaultConfiguration()}
}

func (f *Filler) Fill(ctx context.Context, template []byte, fields map[string]any) ([]byte, error) {
	_, span := tracer.Start(ctx, "Filler.Fill")
	defer span.End()
	span.SetAttributes(attribute.Int("pdf.fields", len(fields)))

	data, err := formJSON(fields)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := api.FillForm(bytes.NewReader(template), bytes.NewReader(data), &out, f.conf); err != nil {
		return nil, fmt.Errorf("fill contract form: %w", err)
	}
	return out.Bytes(), nil
}
