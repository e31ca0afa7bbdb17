package relay

import (
	"errors"
	"testing"
)

func TestParseEnvelope(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		wantModel string
		wantBody  string
	}{
		{name: "plain", raw: `{"modelName":"gemini-pro","body":{"a":1}}`, wantModel: "gemini-pro", wantBody: `{"a":1}`},
		{name: "whitespace model kept", raw: `{"modelName":"  ","body":{}}`, wantModel: "  ", wantBody: `{}`},
		{name: "numeric model", raw: `{"modelName":123,"body":{}}`, wantModel: "123", wantBody: `{}`},
		{name: "zero model", raw: `{"modelName":0,"body":{}}`, wantModel: "", wantBody: `{}`},
		{name: "true model", raw: `{"modelName":true,"body":{}}`, wantModel: "true", wantBody: `{}`},
		{name: "null model", raw: `{"modelName":null,"body":{}}`, wantModel: "", wantBody: `{}`},
		{name: "object model", raw: `{"modelName":{"x":1},"body":{}}`, wantModel: "", wantBody: `{}`},
		{name: "last duplicate wins", raw: `{"modelName":"a","body":1,"modelName":"b","body":{"z":2}}`, wantModel: "b", wantBody: `{"z":2}`},
		{name: "nested fields ignored", raw: `{"inner":{"modelName":"x","body":{}}}`, wantModel: "", wantBody: ""},
		{name: "array root", raw: `[{"modelName":"x"}]`, wantModel: "", wantBody: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := ParseEnvelope([]byte(tc.raw))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if req.ModelName != tc.wantModel {
				t.Fatalf("expected model %q, got %q", tc.wantModel, req.ModelName)
			}
			if string(req.Body) != tc.wantBody {
				t.Fatalf("expected body %q, got %q", tc.wantBody, req.Body)
			}
		})
	}
}

func TestParseEnvelope_InvalidJSON(t *testing.T) {
	if _, err := ParseEnvelope([]byte(`{"modelName":`)); !errors.Is(err, ErrInvalidJSON) {
		t.Fatalf("expected ErrInvalidJSON, got %v", err)
	}
}
