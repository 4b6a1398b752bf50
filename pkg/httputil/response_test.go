package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		data       any
		wantStatus int
		wantBody   string
	}{
		{
			name:       "simple map",
			code:       http.StatusOK,
			data:       map[string]any{"key": "value"},
			wantStatus: http.StatusOK,
			wantBody:   `{"key":"value"}`,
		},
		{
			name:       "array",
			code:       http.StatusCreated,
			data:       []string{"a", "b", "c"},
			wantStatus: http.StatusCreated,
			wantBody:   `["a","b","c"]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, tt.code, tt.data)

			if w.Code != tt.wantStatus {
				t.Errorf("WriteJSON() status = %v, want %v", w.Code, tt.wantStatus)
			}
			if contentType := w.Header().Get("Content-Type"); contentType != "application/json" {
				t.Errorf("WriteJSON() Content-Type = %v, want application/json", contentType)
			}

			var got, want any
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			_ = json.Unmarshal([]byte(tt.wantBody), &want)
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(want)
			if string(gotJSON) != string(wantJSON) {
				t.Errorf("WriteJSON() body = %s, want %s", gotJSON, wantJSON)
			}
		})
	}
}

func TestWriteEnvelopes(t *testing.T) {
	w := httptest.NewRecorder()
	WriteOk(w, map[string]string{"uuid": "u-1"})

	var ok struct {
		OK    bool              `json:"ok"`
		Value map[string]string `json:"value"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &ok); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if !ok.OK || ok.Value["uuid"] != "u-1" {
		t.Errorf("unexpected ok envelope: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	WriteErr(w, http.StatusUnauthorized, "invalid_otp", "e1", map[string]any{"attempts": 1})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	var errBody map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &errBody); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if errBody["ok"] != false || errBody["reason"] != "invalid_otp" || errBody["statusCode"] != float64(401) {
		t.Errorf("unexpected err envelope: %v", errBody)
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusBadRequest, "nope")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}
