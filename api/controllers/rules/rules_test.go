package rules

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internalrules "github.com/joaquinvilla/merkado-backend/internal/rules"
	"github.com/joaquinvilla/merkado-backend/pkg/db/models"
	pkgerrors "github.com/joaquinvilla/merkado-backend/pkg/errors"
)

type stubRulesService struct {
	createInput *internalrules.RuleInput
	updateID    *uuid.UUID
	listParams  *internalrules.ListParams
	deactivated *uuid.UUID
	rule        *models.CommissionRule
	err         error
}

func (s *stubRulesService) CreateRule(ctx context.Context, input internalrules.RuleInput) (*internalrules.MutationResult, error) {
	s.createInput = &input
	if s.err != nil {
		return nil, s.err
	}
	return &internalrules.MutationResult{Rule: s.rule}, nil
}

func (s *stubRulesService) UpdateRule(ctx context.Context, id uuid.UUID, input internalrules.RuleInput) (*internalrules.MutationResult, error) {
	s.updateID = &id
	if s.err != nil {
		return nil, s.err
	}
	return &internalrules.MutationResult{Rule: s.rule}, nil
}

func (s *stubRulesService) GetRule(ctx context.Context, id uuid.UUID) (*models.CommissionRule, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rule, nil
}

func (s *stubRulesService) ListRules(ctx context.Context, params internalrules.ListParams) (*internalrules.ListResult, error) {
	s.listParams = &params
	if s.err != nil {
		return nil, s.err
	}
	return &internalrules.ListResult{}, nil
}

func (s *stubRulesService) DeactivateRule(ctx context.Context, id uuid.UUID) error {
	s.deactivated = &id
	return s.err
}

func (s *stubRulesService) Conflicts(ctx context.Context, query internalrules.ConflictQuery) ([]models.CommissionRule, error) {
	return nil, nil
}

func (s *stubRulesService) BestMatch(ctx context.Context, sellerStoreID *uuid.UUID, category *string, asOf time.Time) (*models.CommissionRule, error) {
	return s.rule, s.err
}

func ruleFixture() *models.CommissionRule {
	return &models.CommissionRule{
		ID:   uuid.New(),
		Rate: decimal.RequireFromString("0.10"),
	}
}

func TestCreateParsesDecimalFields(t *testing.T) {
	svc := &stubRulesService{rule: ruleFixture()}
	handler := Create(svc, nil)

	sellerID := uuid.NewString()
	body := `{
		"seller_store_id": "` + sellerID + `",
		"category": "electronics",
		"rate": "0.125",
		"fixed_fee": "0.50",
		"min_commission": "1.00",
		"max_commission": "250.00",
		"currency": "USD",
		"priority": 5,
		"effective_from": "2025-01-01T00:00:00Z"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commission-rules", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.createInput == nil {
		t.Fatalf("expected service call")
	}
	input := *svc.createInput
	if input.SellerStoreID == nil || input.SellerStoreID.String() != sellerID {
		t.Fatalf("seller id not carried through: %v", input.SellerStoreID)
	}
	if !input.Rate.Equal(decimal.RequireFromString("0.125")) {
		t.Fatalf("unexpected rate %s", input.Rate)
	}
	if input.MinCommission == nil || !input.MinCommission.Equal(decimal.RequireFromString("1.00")) {
		t.Fatalf("unexpected min commission %v", input.MinCommission)
	}
	if input.EffectiveFrom.IsZero() {
		t.Fatalf("effective_from not parsed")
	}
}

func TestCreateRejectsMalformedRate(t *testing.T) {
	svc := &stubRulesService{rule: ruleFixture()}
	handler := Create(svc, nil)

	body := `{"rate": "ten percent", "effective_from": "2025-01-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commission-rules", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if svc.createInput != nil {
		t.Fatalf("service should not be called on invalid input")
	}
}

func TestCreateRejectsMissingEffectiveFrom(t *testing.T) {
	svc := &stubRulesService{rule: ruleFixture()}
	handler := Create(svc, nil)

	body := `{"rate": "0.10"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commission-rules", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpdateRequiresValidRuleID(t *testing.T) {
	svc := &stubRulesService{rule: ruleFixture()}
	handler := Update(svc, nil)

	body := `{"rate": "0.10", "effective_from": "2025-01-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/commission-rules/not-a-uuid", strings.NewReader(body))
	req = withRouteParam(req, "ruleId", "not-a-uuid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListParsesScopeAndActive(t *testing.T) {
	svc := &stubRulesService{}
	handler := List(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/commission-rules?scope=seller_and_category&active=true&limit=10", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.listParams == nil {
		t.Fatalf("expected list call")
	}
	if svc.listParams.Scope == nil || string(*svc.listParams.Scope) != "seller_and_category" {
		t.Fatalf("scope not carried through: %v", svc.listParams.Scope)
	}
	if svc.listParams.Active == nil || !*svc.listParams.Active {
		t.Fatalf("active filter not carried through")
	}
	if svc.listParams.Limit != 10 {
		t.Fatalf("expected limit 10, got %d", svc.listParams.Limit)
	}
}

func TestListRejectsUnknownScope(t *testing.T) {
	svc := &stubRulesService{}
	handler := List(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/commission-rules?scope=galactic", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDeactivateReturnsStatus(t *testing.T) {
	svc := &stubRulesService{}
	handler := Deactivate(svc, nil)

	ruleID := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/commission-rules/"+ruleID.String(), nil)
	req = withRouteParam(req, "ruleId", ruleID.String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.deactivated == nil || *svc.deactivated != ruleID {
		t.Fatalf("deactivate not routed to service")
	}
	var envelope struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data["status"] != "deactivated" {
		t.Fatalf("unexpected payload %v", envelope.Data)
	}
}

func TestGetMapsNotFound(t *testing.T) {
	svc := &stubRulesService{err: pkgerrors.New(pkgerrors.CodeNotFound, "commission rule not found")}
	handler := Get(svc, nil)

	ruleID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/commission-rules/"+ruleID.String(), nil)
	req = withRouteParam(req, "ruleId", ruleID.String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func withRouteParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
