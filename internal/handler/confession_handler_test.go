package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/confide/internal/model"
)

func TestConfessionHandler_Create_HidesAuthor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/confessions", strings.NewReader(`{"content":"secret"}`))
	req = withActor(req, testUser("user-1"))
	w := httptest.NewRecorder()

	NewConfessionHandler(&mockConfessionService{}).Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if strings.Contains(w.Body.String(), "user-1") {
		t.Errorf("response must not contain author id: %s", w.Body.String())
	}
}

func TestConfessionHandler_ListMine(t *testing.T) {
	var gotUser string
	svc := &mockConfessionService{
		listByUserFn: func(ctx context.Context, userID string) []model.Confession {
			gotUser = userID
			return []model.Confession{{ID: "cf-1", UserID: userID, Content: "x"}}
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/confessions/mine", nil)
	req = withActor(req, testUser("user-1"))
	w := httptest.NewRecorder()

	NewConfessionHandler(svc).ListMine(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotUser != "user-1" {
		t.Errorf("userID = %q, want %q", gotUser, "user-1")
	}
}

func TestConfessionHandler_Update_OwnerOnly(t *testing.T) {
	svc := &mockConfessionService{
		updateFn: func(ctx context.Context, actor *model.Profile, id, text string) (*model.Confession, error) {
			if actor.ID != "owner" {
				return nil, model.NewForbiddenError()
			}
			return &model.Confession{ID: id, Content: text}, nil
		},
	}

	tests := []struct {
		actor      string
		wantStatus int
	}{
		{"owner", http.StatusOK},
		{"someone-else", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.actor, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPatch, "/api/confessions/cf-1", strings.NewReader(`{"content":"edited"}`))
			req = withURLParam(withActor(req, testUser(tt.actor)), "id", "cf-1")
			w := httptest.NewRecorder()
			NewConfessionHandler(svc).Update(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestConfessionHandler_Delete(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/api/confessions/cf-1", nil)
	req = withURLParam(withActor(req, testUser("owner")), "id", "cf-1")
	w := httptest.NewRecorder()

	NewConfessionHandler(&mockConfessionService{}).Delete(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}
