package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/levensailor/calndr-go/internal/auth"
	"github.com/levensailor/calndr-go/internal/custody"
	"github.com/levensailor/calndr-go/internal/middleware"
	"github.com/levensailor/calndr-go/internal/models"
	"github.com/levensailor/calndr-go/internal/repository"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

var (
	testFamily = models.Family{
		ID:     uuid.MustParse("00000000-0000-0000-0000-00000000000f"),
		Slug:   "gamull",
		Name:   "Gamull",
		Status: "active",
	}
	jessID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	samID  = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

type fakeProvider struct {
	family *models.Family
}

func (f *fakeProvider) GetFamilyBySlug(ctx context.Context, slug string) (*models.Family, error) {
	if f.family != nil && f.family.Slug == slug {
		fam := *f.family
		return &fam, nil
	}
	return nil, repository.ErrFamilyNotFound
}

func (f *fakeProvider) TouchActivity(ctx context.Context, familyID uuid.UUID) error {
	return nil
}

type fakeUsers struct {
	users []models.User
}

func (f *fakeUsers) GetByUsername(ctx context.Context, familyID uuid.UUID, username string) (*models.User, error) {
	for i := range f.users {
		if f.users[i].FamilyID == familyID && f.users[i].Username == strings.ToLower(username) {
			u := f.users[i]
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUsers) ListParents(ctx context.Context, familyID uuid.UUID) ([]models.User, error) {
	var parents []models.User
	for i := range f.users {
		if f.users[i].FamilyID == familyID && f.users[i].Role == models.RoleParent {
			parents = append(parents, f.users[i])
		}
	}
	return parents, nil
}

func (f *fakeUsers) GetByID(ctx context.Context, familyID, userID uuid.UUID) (*models.User, error) {
	for i := range f.users {
		if f.users[i].FamilyID == familyID && f.users[i].ID == userID {
			u := f.users[i]
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

type fakeDays struct {
	days []models.CustodyDay
}

func (f *fakeDays) Get(ctx context.Context, familyID uuid.UUID, date time.Time) (*models.CustodyDay, error) {
	for i := range f.days {
		if f.days[i].Date.Equal(date) {
			d := f.days[i]
			return &d, nil
		}
	}
	return nil, nil
}

func (f *fakeDays) GetRange(ctx context.Context, familyID uuid.UUID, start, end time.Time) ([]models.CustodyDay, error) {
	var out []models.CustodyDay
	for i := range f.days {
		if !f.days[i].Date.Before(start) && !f.days[i].Date.After(end) {
			out = append(out, f.days[i])
		}
	}
	return out, nil
}

func (f *fakeDays) All(ctx context.Context, familyID uuid.UUID) ([]models.CustodyDay, error) {
	return f.days, nil
}

type fakeEditor struct {
	edits []custody.DayEdit
	err   error
}

func (f *fakeEditor) SetDay(ctx context.Context, familyID uuid.UUID, date time.Time, edit custody.DayEdit) (*models.CustodyDay, error) {
	f.edits = append(f.edits, edit)
	if f.err != nil {
		return nil, f.err
	}
	return &models.CustodyDay{
		ID:          uuid.New(),
		FamilyID:    familyID,
		Date:        date,
		CustodianID: edit.CustodianID,
		ActorID:     edit.ActorID,
	}, nil
}

type fakeTemplates struct {
	templates map[uuid.UUID]models.ScheduleTemplate
}

func (f *fakeTemplates) List(ctx context.Context, familyID uuid.UUID) ([]models.ScheduleTemplate, error) {
	var out []models.ScheduleTemplate
	for _, t := range f.templates {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTemplates) Get(ctx context.Context, familyID, templateID uuid.UUID) (*models.ScheduleTemplate, error) {
	t, ok := f.templates[templateID]
	if !ok {
		return nil, repository.ErrTemplateNotFound
	}
	return &t, nil
}

func (f *fakeTemplates) Create(ctx context.Context, tmpl *models.ScheduleTemplate) error {
	if f.templates == nil {
		f.templates = make(map[uuid.UUID]models.ScheduleTemplate)
	}
	tmpl.ID = uuid.New()
	tmpl.CreatedAt = time.Now()
	f.templates[tmpl.ID] = *tmpl
	return nil
}

func (f *fakeTemplates) Delete(ctx context.Context, familyID, templateID uuid.UUID) error {
	if _, ok := f.templates[templateID]; !ok {
		return repository.ErrTemplateNotFound
	}
	delete(f.templates, templateID)
	return nil
}

type fakeApplier struct {
	result custody.ApplyResult
	err    error
}

func (f *fakeApplier) ApplyTemplate(ctx context.Context, tmpl *models.ScheduleTemplate, familyID, actorID uuid.UUID, start, end time.Time, overwrite bool) (custody.ApplyResult, error) {
	return f.result, f.err
}

type fakeRepairer struct {
	result  custody.RepairResult
	err     error
	dryRuns []bool
}

func (f *fakeRepairer) RepairFamily(ctx context.Context, familyID uuid.UUID, dryRun bool) (custody.RepairResult, error) {
	f.dryRuns = append(f.dryRuns, dryRun)
	if f.err != nil {
		return custody.RepairResult{}, f.err
	}
	return f.result, nil
}

type fakeFeedFamilies struct {
	token  string
	family *models.Family
}

func (f *fakeFeedFamilies) GetFamilyByFeedToken(ctx context.Context, token string) (*models.Family, error) {
	if f.family != nil && token == f.token {
		fam := *f.family
		return &fam, nil
	}
	return nil, repository.ErrFamilyNotFound
}

// testEnv bundles a router with the fakes and auth service behind it.
type testEnv struct {
	router *gin.Engine
	jwt    *auth.JWTService
}

func newTestEnv(register func(api *gin.RouterGroup, env *testEnv)) *testEnv {
	env := &testEnv{jwt: auth.NewJWTService("test-secret", "calndr-test")}
	r := gin.New()
	r.Use(middleware.FamilyMiddleware(&fakeProvider{family: &testFamily}, "calndr.club"))
	api := r.Group("/api")
	api.Use(middleware.RequireFamily())
	register(api, env)
	env.router = r
	return env
}

func (env *testEnv) bearer(t *testing.T, userID uuid.UUID, username, role string) string {
	t.Helper()
	token, err := env.jwt.GenerateToken(userID, testFamily.ID, username, role)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return "Bearer " + token
}

func doRequest(t *testing.T, router *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, "http://gamull.calndr.club"+path, reader)
	req.Host = "gamull.calndr.club"
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func bcryptHash(t *testing.T, password string) *string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	s := string(hash)
	return &s
}

func TestLoginReturnsToken(t *testing.T) {
	users := &fakeUsers{users: []models.User{{
		ID:           jessID,
		FamilyID:     testFamily.ID,
		Username:     "jess",
		DisplayName:  "Jess",
		Role:         models.RoleParent,
		PasswordHash: bcryptHash(t, "sunny-days"),
		LoginEnabled: true,
	}}}

	env := newTestEnv(func(api *gin.RouterGroup, env *testEnv) {
		api.POST("/auth/login", Login(users, env.jwt))
	})

	w := doRequest(t, env.router, http.MethodPost, "/api/auth/login",
		`{"username": "Jess", "password": "sunny-days"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	var resp LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Role != models.RoleParent {
		t.Errorf("role: got %q, want %q", resp.Role, models.RoleParent)
	}
	claims, err := env.jwt.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("returned token does not validate: %v", err)
	}
	if claims.UserID != jessID || claims.FamilyID != testFamily.ID {
		t.Errorf("claims: got user %s family %s, want %s / %s", claims.UserID, claims.FamilyID, jessID, testFamily.ID)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	users := &fakeUsers{users: []models.User{{
		ID:           jessID,
		FamilyID:     testFamily.ID,
		Username:     "jess",
		Role:         models.RoleParent,
		PasswordHash: bcryptHash(t, "sunny-days"),
		LoginEnabled: true,
	}}}

	env := newTestEnv(func(api *gin.RouterGroup, env *testEnv) {
		api.POST("/auth/login", Login(users, env.jwt))
	})

	w := doRequest(t, env.router, http.MethodPost, "/api/auth/login",
		`{"username": "jess", "password": "rainy-days"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", w.Code)
	}

	w = doRequest(t, env.router, http.MethodPost, "/api/auth/login",
		`{"username": "nobody", "password": "sunny-days"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unknown user status: got %d, want 401", w.Code)
	}
}

func TestLoginRejectsDisabledUser(t *testing.T) {
	users := &fakeUsers{users: []models.User{{
		ID:           samID,
		FamilyID:     testFamily.ID,
		Username:     "sam",
		Role:         models.RoleParent,
		PasswordHash: bcryptHash(t, "sunny-days"),
		LoginEnabled: false,
	}}}

	env := newTestEnv(func(api *gin.RouterGroup, env *testEnv) {
		api.POST("/auth/login", Login(users, env.jwt))
	})

	w := doRequest(t, env.router, http.MethodPost, "/api/auth/login",
		`{"username": "sam", "password": "sunny-days"}`, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("status: got %d, want 403", w.Code)
	}
}

func TestCurrentUserReturnsProfile(t *testing.T) {
	users := &fakeUsers{users: []models.User{{
		ID:          jessID,
		FamilyID:    testFamily.ID,
		Username:    "jess",
		DisplayName: "Jess",
		FirstName:   "Jess",
		Role:        models.RoleParent,
	}}}

	env := newTestEnv(func(api *gin.RouterGroup, env *testEnv) {
		authed := api.Group("", middleware.RequireAuth(env.jwt))
		authed.GET("/me", CurrentUser(users))
	})

	w := doRequest(t, env.router, http.MethodGet, "/api/me", "",
		map[string]string{"Authorization": env.bearer(t, jessID, "jess", models.RoleParent)})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	var resp models.User
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != jessID || resp.Username != "jess" {
		t.Errorf("profile: got %s/%s, want jess", resp.ID, resp.Username)
	}

	w = doRequest(t, env.router, http.MethodGet, "/api/me", "",
		map[string]string{"Authorization": env.bearer(t, uuid.New(), "ghost", models.RoleParent)})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown user status: got %d, want 404", w.Code)
	}
}

func TestRoutesRequireFamilySubdomain(t *testing.T) {
	env := newTestEnv(func(api *gin.RouterGroup, env *testEnv) {
		api.GET("/guardians", ListGuardians(&fakeUsers{}))
	})

	req := httptest.NewRequest(http.MethodGet, "http://api.calndr.club/api/guardians", nil)
	req.Host = "api.calndr.club"
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400 without a family subdomain", w.Code)
	}
}

func TestListGuardiansOrdersAndShapes(t *testing.T) {
	users := &fakeUsers{users: []models.User{
		{ID: jessID, FamilyID: testFamily.ID, Username: "jess", FirstName: "Jess", Role: models.RoleParent, ColorTheme: "#6c8ebf"},
		{ID: samID, FamilyID: testFamily.ID, Username: "sam", FirstName: "Sam", Role: models.RoleParent, ColorTheme: "#b85450"},
		{ID: uuid.New(), FamilyID: testFamily.ID, Username: "kid", FirstName: "Kid", Role: models.RoleChild},
	}}

	env := newTestEnv(func(api *gin.RouterGroup, env *testEnv) {
		api.GET("/guardians", ListGuardians(users))
	})

	w := doRequest(t, env.router, http.MethodGet, "/api/guardians", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}

	var resp struct {
		Guardians []models.GuardianResponse `json:"guardians"`
		Count     int                       `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("count: got %d, want 2 (children excluded)", resp.Count)
	}
	if len(resp.Guardians) != 2 || resp.Guardians[0].FirstName != "Jess" {
		t.Errorf("guardians: got %+v, want Jess first", resp.Guardians)
	}
}

func TestGetCustodyRangeRejectsBadDates(t *testing.T) {
	env := newTestEnv(func(api *gin.RouterGroup, env *testEnv) {
		api.GET("/custody", GetCustodyRange(&fakeDays{}, &fakeUsers{}))
	})

	for _, path := range []string{
		"/api/custody?start=nonsense",
		"/api/custody?start=2024-01-01&end=nonsense",
		"/api/custody?start=2024-02-01&end=2024-01-01",
	} {
		w := doRequest(t, env.router, http.MethodGet, path, "", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status got %d, want 400", path, w.Code)
		}
	}
}

func TestGetCustodyRangeReturnsDays(t *testing.T) {
	day := func(s string, custodian uuid.UUID) models.CustodyDay {
		d, _ := time.Parse("2006-01-02", s)
		return models.CustodyDay{ID: uuid.New(), FamilyID: testFamily.ID, Date: d, CustodianID: custodian}
	}
	days := &fakeDays{days: []models.CustodyDay{
		day("2024-01-05", jessID),
		day("2024-01-06", samID),
		day("2024-02-01", jessID),
	}}
	users := &fakeUsers{users: []models.User{
		{ID: jessID, FamilyID: testFamily.ID, FirstName: "Jess", Role: models.RoleParent},
		{ID: samID, FamilyID: testFamily.ID, FirstName: "Sam", Role: models.RoleParent},
	}}

	env := newTestEnv(func(api *gin.RouterGroup, env *testEnv) {
		api.GET("/custody", GetCustodyRange(days, users))
	})

	w := doRequest(t, env.router, http.MethodGet, "/api/custody?start=2024-01-01&end=2024-01-31", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}

	var resp models.CustodyRangeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalDays != 2 {
		t.Errorf("total_days: got %d, want 2 (February day excluded)", resp.TotalDays)
	}
	if len(resp.Days) != 2 || resp.Days[0].CustodianName != "Jess" {
		t.Errorf("days: got %+v, want Jess's day first", resp.Days)
	}
}

func TestGetCustodyDay(t *testing.T) {
	d, _ := time.Parse("2006-01-02", "2024-01-09")
	handoffTime := "17:00"
	days := &fakeDays{days: []models.CustodyDay{{
		ID:          uuid.New(),
		FamilyID:    testFamily.ID,
		Date:        d,
		CustodianID: samID,
		HandoffDay:  true,
		HandoffTime: &handoffTime,
	}}}
	users := &fakeUsers{users: []models.User{
		{ID: samID, FamilyID: testFamily.ID, FirstName: "Sam", Role: models.RoleParent},
	}}

	env := newTestEnv(func(api *gin.RouterGroup, env *testEnv) {
		api.GET("/custody/:date", GetCustodyDay(days, users))
	})

	w := doRequest(t, env.router, http.MethodGet, "/api/custody/2024-01-09", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var resp models.CustodyDayResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CustodianName != "Sam" || !resp.HandoffDay {
		t.Errorf("day: got %+v, want Sam's handoff day", resp)
	}

	w = doRequest(t, env.router, http.MethodGet, "/api/custody/2024-01-10", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing day status: got %d, want 404", w.Code)
	}

	w = doRequest(t, env.router, http.MethodGet, "/api/custody/not-a-date", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad date status: got %d, want 400", w.Code)
	}
}

func TestSetCustodyDayRequiresGuardianRole(t *testing.T) {
	editor := &fakeEditor{}
	env := newTestEnv(func(api *gin.RouterGroup, env *testEnv) {
		protected := api.Group("")
		protected.Use(middleware.RequireAuth(env.jwt), middleware.RequireGuardian())
		protected.PUT("/custody/:date", SetCustodyDay(editor, &fakeUsers{}))
	})

	body := fmt.Sprintf(`{"custodian_id": %q}`, jessID)

	w := doRequest(t, env.router, http.MethodPut, "/api/custody/2024-01-06", body, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status got %d, want 401", w.Code)
	}

	w = doRequest(t, env.router, http.MethodPut, "/api/custody/2024-01-06", body,
		map[string]string{"Authorization": env.bearer(t, uuid.New(), "kid", models.RoleChild)})
	if w.Code != http.StatusForbidden {
		t.Errorf("child token: status got %d, want 403", w.Code)
	}

	if len(editor.edits) != 0 {
		t.Errorf("edits reached the engine: got %d, want 0", len(editor.edits))
	}
}

func TestSetCustodyDayTracksFieldPresence(t *testing.T) {
	editor := &fakeEditor{}
	env := newTestEnv(func(api *gin.RouterGroup, env *testEnv) {
		protected := api.Group("")
		protected.Use(middleware.RequireAuth(env.jwt), middleware.RequireGuardian())
		protected.PUT("/custody/:date", SetCustodyDay(editor, &fakeUsers{}))
	})
	authHeader := map[string]string{"Authorization": env.bearer(t, jessID, "jess", models.RoleParent)}

	body := fmt.Sprintf(`{"custodian_id": %q, "handoff_time": null, "handoff_location": "school gate"}`, samID)
	w := doRequest(t, env.router, http.MethodPut, "/api/custody/2024-01-06", body, authHeader)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	if len(editor.edits) != 1 {
		t.Fatalf("edits: got %d, want 1", len(editor.edits))
	}
	edit := editor.edits[0]
	if edit.CustodianID != samID {
		t.Errorf("custodian: got %s, want %s", edit.CustodianID, samID)
	}
	if edit.ActorID != jessID {
		t.Errorf("actor: got %s, want %s", edit.ActorID, jessID)
	}
	if edit.Handoff.HandoffDay != nil {
		t.Errorf("handoff_day: got %v, want nil for an absent field", *edit.Handoff.HandoffDay)
	}
	if edit.Handoff.Time != nil {
		t.Errorf("handoff_time: got %q, want nil for an explicit null", *edit.Handoff.Time)
	}
	if edit.Handoff.Location == nil || *edit.Handoff.Location != "school gate" {
		t.Errorf("handoff_location: got %v, want \"school gate\"", edit.Handoff.Location)
	}
}

func TestSetCustodyDayMapsEngineErrors(t *testing.T) {
	editor := &fakeEditor{err: fmt.Errorf("%w: custodian is not a registered guardian", custody.ErrPreconditionFailed)}
	env := newTestEnv(func(api *gin.RouterGroup, env *testEnv) {
		protected := api.Group("")
		protected.Use(middleware.RequireAuth(env.jwt), middleware.RequireGuardian())
		protected.PUT("/custody/:date", SetCustodyDay(editor, &fakeUsers{}))
	})
	authHeader := map[string]string{"Authorization": env.bearer(t, jessID, "jess", models.RoleParent)}

	body := fmt.Sprintf(`{"custodian_id": %q}`, uuid.New())
	w := doRequest(t, env.router, http.MethodPut, "/api/custody/2024-01-06", body, authHeader)
	if w.Code != http.StatusConflict {
		t.Errorf("status: got %d, want 409", w.Code)
	}
}

func TestCreateTemplateValidatesPattern(t *testing.T) {
	store := &fakeTemplates{}
	env := newTestEnv(func(api *gin.RouterGroup, env *testEnv) {
		api.POST("/templates", CreateTemplate(store))
	})

	w := doRequest(t, env.router, http.MethodPost, "/api/templates",
		`{"name": "Week split", "pattern_type": "weekly", "pattern": {"weekly": {"monday": "guardian-A", "friday": "guardian-B"}}}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("valid template status: got %d, want 201 (body %s)", w.Code, w.Body.String())
	}

	w = doRequest(t, env.router, http.MethodPost, "/api/templates",
		`{"name": "Bad", "pattern_type": "weekly", "pattern": {"weekly": {"caturday": "guardian-A"}}}`, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad weekday status: got %d, want 422", w.Code)
	}

	w = doRequest(t, env.router, http.MethodPost, "/api/templates",
		`{"name": "Bad", "pattern_type": "alternating-weeks", "pattern": {"week1": {}, "week2": {}}}`, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing anchor status: got %d, want 422", w.Code)
	}

	if len(store.templates) != 1 {
		t.Errorf("stored templates: got %d, want only the valid one", len(store.templates))
	}
}

func TestTemplateListGetDelete(t *testing.T) {
	tmplID := uuid.New()
	store := &fakeTemplates{templates: map[uuid.UUID]models.ScheduleTemplate{
		tmplID: {ID: tmplID, FamilyID: testFamily.ID, Name: "Week split", PatternType: models.PatternWeekly},
	}}
	env := newTestEnv(func(api *gin.RouterGroup, env *testEnv) {
		api.GET("/templates", ListTemplates(store))
		api.GET("/templates/:id", GetTemplate(store))
		api.DELETE("/templates/:id", DeleteTemplate(store))
	})

	w := doRequest(t, env.router, http.MethodGet, "/api/templates", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status: got %d, want 200", w.Code)
	}
	var list struct {
		Templates []models.TemplateResponse `json:"templates"`
		Count     int                       `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Count != 1 || len(list.Templates) != 1 || list.Templates[0].Name != "Week split" {
		t.Errorf("list: got %+v, want one template named Week split", list)
	}

	w = doRequest(t, env.router, http.MethodGet, "/api/templates/"+tmplID.String(), "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("get status: got %d, want 200", w.Code)
	}

	w = doRequest(t, env.router, http.MethodDelete, "/api/templates/"+tmplID.String(), "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("delete status: got %d, want 200", w.Code)
	}

	w = doRequest(t, env.router, http.MethodGet, "/api/templates/"+tmplID.String(), "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status: got %d, want 404", w.Code)
	}
	w = doRequest(t, env.router, http.MethodDelete, "/api/templates/"+tmplID.String(), "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("double delete status: got %d, want 404", w.Code)
	}
}

func TestApplyTemplateMapsEngineErrors(t *testing.T) {
	tmplID := uuid.New()
	store := &fakeTemplates{templates: map[uuid.UUID]models.ScheduleTemplate{
		tmplID: {ID: tmplID, FamilyID: testFamily.ID, PatternType: models.PatternWeekly},
	}}

	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"range too large", fmt.Errorf("%w: 900 days", custody.ErrRangeTooLarge), http.StatusRequestEntityTooLarge},
		{"invalid template", fmt.Errorf("%w: bad rrule", custody.ErrInvalidTemplate), http.StatusUnprocessableEntity},
		{"single guardian", fmt.Errorf("%w: one guardian", custody.ErrPreconditionFailed), http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(func(api *gin.RouterGroup, env *testEnv) {
				protected := api.Group("")
				protected.Use(middleware.RequireAuth(env.jwt), middleware.RequireGuardian())
				protected.POST("/templates/:id/apply", ApplyTemplate(store, &fakeApplier{err: tc.err}))
			})
			authHeader := map[string]string{"Authorization": env.bearer(t, jessID, "jess", models.RoleParent)}

			w := doRequest(t, env.router, http.MethodPost, "/api/templates/"+tmplID.String()+"/apply",
				`{"start_date": "2024-01-01", "end_date": "2024-03-01"}`, authHeader)
			if w.Code != tc.wantStatus {
				t.Errorf("status: got %d, want %d", w.Code, tc.wantStatus)
			}
		})
	}
}

func TestApplyTemplateUnknownIDReturns404(t *testing.T) {
	env := newTestEnv(func(api *gin.RouterGroup, env *testEnv) {
		protected := api.Group("")
		protected.Use(middleware.RequireAuth(env.jwt), middleware.RequireGuardian())
		protected.POST("/templates/:id/apply", ApplyTemplate(&fakeTemplates{}, &fakeApplier{}))
	})
	authHeader := map[string]string{"Authorization": env.bearer(t, jessID, "jess", models.RoleParent)}

	w := doRequest(t, env.router, http.MethodPost, "/api/templates/"+uuid.NewString()+"/apply",
		`{"start_date": "2024-01-01", "end_date": "2024-03-01"}`, authHeader)
	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", w.Code)
	}
}

func TestApplyTemplateReturnsResult(t *testing.T) {
	tmplID := uuid.New()
	store := &fakeTemplates{templates: map[uuid.UUID]models.ScheduleTemplate{
		tmplID: {ID: tmplID, FamilyID: testFamily.ID, PatternType: models.PatternWeekly},
	}}
	applier := &fakeApplier{result: custody.ApplyResult{DaysApplied: 60, ConflictsOverwritten: 3}}

	env := newTestEnv(func(api *gin.RouterGroup, env *testEnv) {
		protected := api.Group("")
		protected.Use(middleware.RequireAuth(env.jwt), middleware.RequireGuardian())
		protected.POST("/templates/:id/apply", ApplyTemplate(store, applier))
	})
	authHeader := map[string]string{"Authorization": env.bearer(t, jessID, "jess", models.RoleParent)}

	w := doRequest(t, env.router, http.MethodPost, "/api/templates/"+tmplID.String()+"/apply",
		`{"start_date": "2024-01-01", "end_date": "2024-03-01", "overwrite_existing": true}`, authHeader)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	var resp custody.ApplyResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.DaysApplied != 60 || resp.ConflictsOverwritten != 3 {
		t.Errorf("result: got %+v, want 60 applied / 3 overwritten", resp)
	}
}

func TestTriggerRepairDryRun(t *testing.T) {
	repairer := &fakeRepairer{result: custody.RepairResult{RecordsScanned: 42, RecordsChanged: 5, DryRun: true}}
	env := newTestEnv(func(api *gin.RouterGroup, env *testEnv) {
		protected := api.Group("")
		protected.Use(middleware.RequireAuth(env.jwt), middleware.RequireGuardian())
		protected.POST("/custody/repair", TriggerRepair(repairer))
	})
	authHeader := map[string]string{"Authorization": env.bearer(t, jessID, "jess", models.RoleParent)}

	w := doRequest(t, env.router, http.MethodPost, "/api/custody/repair?dry_run=true", "", authHeader)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	if len(repairer.dryRuns) != 1 || !repairer.dryRuns[0] {
		t.Errorf("dry run flags passed to engine: got %v, want [true]", repairer.dryRuns)
	}

	var resp custody.RepairResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RecordsScanned != 42 || resp.RecordsChanged != 5 {
		t.Errorf("result: got %+v, want 42 scanned / 5 changed", resp)
	}
}

func TestTriggerRepairConflictWhenAlreadyRunning(t *testing.T) {
	repairer := &fakeRepairer{err: fmt.Errorf("%w: family busy", custody.ErrConcurrentRepair)}
	env := newTestEnv(func(api *gin.RouterGroup, env *testEnv) {
		protected := api.Group("")
		protected.Use(middleware.RequireAuth(env.jwt), middleware.RequireGuardian())
		protected.POST("/custody/repair", TriggerRepair(repairer))
	})
	authHeader := map[string]string{"Authorization": env.bearer(t, jessID, "jess", models.RoleParent)}

	w := doRequest(t, env.router, http.MethodPost, "/api/custody/repair", "", authHeader)
	if w.Code != http.StatusConflict {
		t.Errorf("status: got %d, want 409", w.Code)
	}
}

func TestCustodyFeedServesCalendar(t *testing.T) {
	d, _ := time.Parse("2006-01-02", "2024-01-06")
	loc := "daycare"
	tm := "17:00"
	days := &fakeDays{days: []models.CustodyDay{{
		ID:              uuid.New(),
		FamilyID:        testFamily.ID,
		Date:            d,
		CustodianID:     jessID,
		HandoffDay:      true,
		HandoffTime:     &tm,
		HandoffLocation: &loc,
		UpdatedAt:       time.Now(),
	}}}
	users := &fakeUsers{users: []models.User{
		{ID: jessID, FamilyID: testFamily.ID, FirstName: "Jess", Role: models.RoleParent},
	}}
	families := &fakeFeedFamilies{token: "feed-token-1", family: &testFamily}

	r := gin.New()
	r.GET("/feed/custody.ics", CustodyFeed(families, days, users))

	req := httptest.NewRequest(http.MethodGet, "/feed/custody.ics?token=feed-token-1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("content type: got %q, want text/calendar", ct)
	}
	body := w.Body.String()
	for _, want := range []string{"BEGIN:VCALENDAR", "SUMMARY:With Jess", "20240106"} {
		if !strings.Contains(body, want) {
			t.Errorf("feed body missing %q", want)
		}
	}
}

func TestCustodyFeedRejectsBadTokens(t *testing.T) {
	families := &fakeFeedFamilies{token: "feed-token-1", family: &testFamily}
	r := gin.New()
	r.GET("/feed/custody.ics", CustodyFeed(families, &fakeDays{}, &fakeUsers{}))

	req := httptest.NewRequest(http.MethodGet, "/feed/custody.ics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing token status: got %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/feed/custody.ics?token=wrong", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("wrong token status: got %d, want 404", w.Code)
	}
}

func TestDemoFamilyIsReadOnly(t *testing.T) {
	demoFamily := testFamily
	demoFamily.Slug = "demo"
	demoFamily.Demo = true

	editor := &fakeEditor{}
	env := &testEnv{jwt: auth.NewJWTService("test-secret", "calndr-test")}
	r := gin.New()
	r.Use(middleware.FamilyMiddleware(&fakeProvider{family: &demoFamily}, "calndr.club"))
	api := r.Group("/api")
	api.Use(middleware.RequireFamily(), middleware.ProtectDemoFamily())
	api.PUT("/custody/:date", SetCustodyDay(editor, &fakeUsers{}))
	api.GET("/custody", GetCustodyRange(&fakeDays{}, &fakeUsers{}))
	env.router = r

	req := httptest.NewRequest(http.MethodPut, "http://demo.calndr.club/api/custody/2024-01-06",
		bytes.NewReader([]byte(fmt.Sprintf(`{"custodian_id": %q}`, jessID))))
	req.Host = "demo.calndr.club"
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("write status: got %d, want 403 for the demo family", w.Code)
	}
	if len(editor.edits) != 0 {
		t.Errorf("edits reached the engine: got %d, want 0", len(editor.edits))
	}

	req = httptest.NewRequest(http.MethodGet, "http://demo.calndr.club/api/custody?start=2024-01-01&end=2024-01-31", nil)
	req.Host = "demo.calndr.club"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("read status: got %d, want 200 for the demo family", w.Code)
	}
}
