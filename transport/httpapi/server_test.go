package httpapi_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/circulation-core/access"
	"github.com/AntonStoeckl/circulation-core/catalog"
	"github.com/AntonStoeckl/circulation-core/circulation"
	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/inventory"
	"github.com/AntonStoeckl/circulation-core/ledger"
	"github.com/AntonStoeckl/circulation-core/shell"
	"github.com/AntonStoeckl/circulation-core/store/memengine"
	"github.com/AntonStoeckl/circulation-core/tenancy"
	. "github.com/AntonStoeckl/circulation-core/testutil/fixtures" //nolint:revive
	"github.com/AntonStoeckl/circulation-core/testutil/spies"
	"github.com/AntonStoeckl/circulation-core/transport/httpapi"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type fixture struct {
	store   *memengine.Store
	router  *gin.Engine
	logs    *spies.LogHandlerSpy
	tenant  Tenant
	edition core.BookEdition
	copy    core.BookCopy
	members []core.LibraryMember
}

func givenAPI(t *testing.T) fixture {
	t.Helper()

	gin.SetMode(gin.TestMode)

	s := memengine.New()
	auth := access.NewEvaluator(access.NewResolver(s))
	clock := func() time.Time { return FakeClock }

	engine, err := circulation.NewEngine(s, auth,
		circulation.WithClock(clock),
		circulation.WithRetryOptions(shell.WithBaseDelay(time.Millisecond)),
	)
	require.NoError(t, err)

	registry, err := inventory.NewRegistry(s, auth, inventory.WithClock(clock))
	require.NoError(t, err)

	softDeletes, err := ledger.New(s, auth, ledger.WithClock(clock))
	require.NoError(t, err)

	gateway, err := catalog.NewGateway(s, auth, catalog.WithClock(clock))
	require.NoError(t, err)

	tenants, err := tenancy.NewService(s, auth, tenancy.WithClock(clock))
	require.NoError(t, err)

	logs := spies.NewLogHandlerSpy()

	router, err := httpapi.NewRouter(httpapi.Services{
		Circulation: engine,
		Inventory:   registry,
		Ledger:      softDeletes,
		Catalog:     gateway,
		Tenancy:     tenants,
	}, httpapi.WithLogger(slog.New(logs)), httpapi.WithAllowedOrigins("https://desk.example.org"))
	require.NoError(t, err)

	tenant := GivenLibrary(t, s, "HTTP-1")
	edition := GivenEdition(t, s)

	return fixture{
		store:   s,
		router:  router,
		logs:    logs,
		tenant:  tenant,
		edition: edition,
		copy:    GivenCopy(t, s, tenant.Library.ID, edition.ID, 1),
		members: GivenMembers(t, s, tenant.Library.ID, 2),
	}
}

func (f fixture) do(t *testing.T, method, path string, userID uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	if userID != uuid.Nil {
		req.Header.Set(httpapi.HeaderUserID, userID.String())
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	return rec
}

func (f fixture) libraryPath(suffix string) string {
	return "/api/v1/libraries/" + f.tenant.Library.ID.String() + suffix
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())

	return out
}

type transactionBody struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
	Type   string    `json:"type"`
	Fees   core.Fees `json:"fees"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (f fixture) checkout(t *testing.T, memberIdx int) *httptest.ResponseRecorder {
	return f.do(t, http.MethodPost, f.libraryPath("/checkouts"), f.tenant.Volunteer.UserID, map[string]any{
		"copy_id":   f.copy.ID,
		"member_id": f.members[memberIdx].ID,
	})
}

func Test_Healthz_Answers_OK(t *testing.T) {
	// setup
	f := givenAPI(t)

	// act
	rec := f.do(t, http.MethodGet, "/healthz", uuid.Nil, nil)

	// assert
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func Test_NewRouter_Requires_All_Services(t *testing.T) {
	// act
	_, err := httpapi.NewRouter(httpapi.Services{})

	// assert
	assert.ErrorIs(t, err, httpapi.ErrMissingService)
}

func Test_Identity_Header_Is_Required_And_Validated(t *testing.T) {
	// setup
	f := givenAPI(t)

	// act
	missing := f.do(t, http.MethodGet, f.libraryPath(""), uuid.Nil, nil)

	req := httptest.NewRequest(http.MethodGet, f.libraryPath(""), nil)
	req.Header.Set(httpapi.HeaderUserID, "not-a-uuid")
	malformed := httptest.NewRecorder()
	f.router.ServeHTTP(malformed, req)

	// assert
	assert.Equal(t, http.StatusUnauthorized, missing.Code)
	assert.Equal(t, "UNAUTHENTICATED", decode[errorBody](t, missing).Error.Code)
	assert.Equal(t, http.StatusBadRequest, malformed.Code)
}

func Test_Checkout_And_Return_Round_Trip(t *testing.T) {
	// setup
	f := givenAPI(t)

	// act
	checkedOut := f.checkout(t, 0)
	loan := decode[transactionBody](t, checkedOut)

	returned := f.do(t, http.MethodPost, f.libraryPath("/transactions/"+loan.ID.String()+"/return"),
		f.tenant.Librarian.UserID, map[string]any{"damage_fee_cents": 150})

	history := f.do(t, http.MethodGet, f.libraryPath("/transactions/"+loan.ID.String()+"/events"),
		f.tenant.Manager.UserID, nil)

	// assert
	require.Equal(t, http.StatusCreated, checkedOut.Code, checkedOut.Body.String())
	assert.Equal(t, string(core.TransactionCheckout), loan.Type)
	assert.Equal(t, string(core.StatusActive), loan.Status)

	require.Equal(t, http.StatusOK, returned.Code, returned.Body.String())
	settled := decode[transactionBody](t, returned)
	assert.Equal(t, string(core.StatusReturned), settled.Status)
	assert.Equal(t, int64(150), settled.Fees.Damage)
	assert.Equal(t, int64(150), settled.Fees.Total)

	require.Equal(t, http.StatusOK, history.Code)
	events := decode[[]struct {
		EventType string `json:"event_type"`
	}](t, history)
	require.Len(t, events, 2)
	assert.Equal(t, string(core.EventCheckedOut), events[0].EventType)
	assert.Equal(t, string(core.EventReturned), events[1].EventType)

	bookCopy := ReadCopy(t, f.store, f.tenant.Library.ID, f.copy.ID)
	assert.Equal(t, core.AvailabilityAvailable, bookCopy.Availability.Status)
	assert.Equal(t, 1, bookCopy.AvailableCopies)
}

func Test_Checkout_Of_A_Borrowed_Copy_Is_A_Conflict(t *testing.T) {
	// setup
	f := givenAPI(t)
	require.Equal(t, http.StatusCreated, f.checkout(t, 0).Code)

	// act
	rec := f.checkout(t, 1)

	// assert
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "BUSINESS_RULE_VIOLATION", body.Error.Code)
	assert.Equal(t, core.ErrCopyUnavailable.Error(), body.Error.Message)
}

func Test_Staff_Of_Another_Library_Is_Forbidden(t *testing.T) {
	// setup
	f := givenAPI(t)
	other := GivenLibrary(t, f.store, "HTTP-2")

	// act
	rec := f.do(t, http.MethodPost, f.libraryPath("/checkouts"), other.Owner.UserID, map[string]any{
		"copy_id":   f.copy.ID,
		"member_id": f.members[0].ID,
	})

	// assert
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "NOT_AUTHORIZED", decode[errorBody](t, rec).Error.Code)
	assert.Equal(t, core.AvailabilityAvailable, ReadCopy(t, f.store, f.tenant.Library.ID, f.copy.ID).Availability.Status)
}

func Test_Unknown_Rows_Are_Not_Found(t *testing.T) {
	// setup
	f := givenAPI(t)

	// act
	copyRec := f.do(t, http.MethodGet, f.libraryPath("/copies/"+uuid.NewString()), f.tenant.Librarian.UserID, nil)
	loanRec := f.do(t, http.MethodPost, f.libraryPath("/transactions/"+uuid.NewString()+"/renew"), f.tenant.Librarian.UserID, nil)

	// assert
	assert.Equal(t, http.StatusNotFound, copyRec.Code)
	assert.Equal(t, http.StatusNotFound, loanRec.Code)
}

func Test_Malformed_Requests_Are_Bad_Requests(t *testing.T) {
	// setup
	f := givenAPI(t)

	// act
	badPath := f.do(t, http.MethodGet, "/api/v1/libraries/nope/copies", f.tenant.Librarian.UserID, nil)
	missingFields := f.do(t, http.MethodPost, f.libraryPath("/checkouts"), f.tenant.Librarian.UserID, map[string]any{})
	badLimit := f.do(t, http.MethodGet, f.libraryPath("/copies?limit=-1"), f.tenant.Librarian.UserID, nil)

	// assert
	assert.Equal(t, http.StatusBadRequest, badPath.Code)
	assert.Equal(t, http.StatusBadRequest, missingFields.Code)
	assert.Equal(t, "INVALID_ARGUMENT", decode[errorBody](t, missingFields).Error.Code)
	assert.Equal(t, http.StatusBadRequest, badLimit.Code)
}

func Test_Holds_Are_Placed_And_Cancelled(t *testing.T) {
	// setup
	f := givenAPI(t)
	require.Equal(t, http.StatusCreated, f.checkout(t, 0).Code)

	// act
	placed := f.do(t, http.MethodPost, f.libraryPath("/holds"), f.tenant.Volunteer.UserID, map[string]any{
		"copy_id":   f.copy.ID,
		"member_id": f.members[1].ID,
	})
	queued := ReadCopy(t, f.store, f.tenant.Library.ID, f.copy.ID).Availability.HoldQueue

	cancelled := f.do(t, http.MethodDelete,
		f.libraryPath("/copies/"+f.copy.ID.String()+"/holds/"+f.members[1].ID.String()),
		f.tenant.Volunteer.UserID, nil)

	// assert
	require.Equal(t, http.StatusCreated, placed.Code, placed.Body.String())
	assert.Equal(t, string(core.TransactionHold), decode[transactionBody](t, placed).Type)
	assert.Equal(t, []uuid.UUID{f.members[1].ID}, queued)

	require.Equal(t, http.StatusOK, cancelled.Code, cancelled.Body.String())
	assert.Equal(t, string(core.StatusCancelled), decode[transactionBody](t, cancelled).Status)
	assert.Empty(t, ReadCopy(t, f.store, f.tenant.Library.ID, f.copy.ID).Availability.HoldQueue)
}

func Test_Member_Soft_Delete_Is_Idempotent_And_Restorable(t *testing.T) {
	// setup
	f := givenAPI(t)
	path := f.libraryPath("/members/" + f.members[0].ID.String())

	// act
	first := f.do(t, http.MethodDelete, path, f.tenant.Manager.UserID, nil)
	second := f.do(t, http.MethodDelete, path, f.tenant.Manager.UserID, nil)
	byLibrarian := f.do(t, http.MethodPost, path+"/restore", f.tenant.Librarian.UserID, nil)
	restored := f.do(t, http.MethodPost, path+"/restore", f.tenant.Manager.UserID, nil)

	// assert
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.JSONEq(t, `{"changed":true}`, first.Body.String())
	assert.JSONEq(t, `{"changed":false}`, second.Body.String())
	assert.Equal(t, http.StatusForbidden, byLibrarian.Code)
	assert.JSONEq(t, `{"changed":true}`, restored.Body.String())
	assert.False(t, ReadMember(t, f.store, f.tenant.Library.ID, f.members[0].ID).Deleted.IsDeleted)
}

func Test_Deleting_A_Member_With_Open_Loans_Is_A_Conflict(t *testing.T) {
	// setup
	f := givenAPI(t)
	require.Equal(t, http.StatusCreated, f.checkout(t, 0).Code)

	// act
	rec := f.do(t, http.MethodDelete, f.libraryPath("/members/"+f.members[0].ID.String()), f.tenant.Owner.UserID, nil)

	// assert
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, core.ErrMemberHasOpenLoans.Error(), decode[errorBody](t, rec).Error.Message)
}

func Test_Inventory_Registration_And_Listing(t *testing.T) {
	// setup
	f := givenAPI(t)

	// act
	registered := f.do(t, http.MethodPost, f.libraryPath("/copies"), f.tenant.Librarian.UserID, map[string]any{
		"edition_id":  f.edition.ID,
		"copy_number": 2,
		"location":    "B-4",
	})
	byVolunteer := f.do(t, http.MethodPost, f.libraryPath("/copies"), f.tenant.Volunteer.UserID, map[string]any{
		"edition_id":  f.edition.ID,
		"copy_number": 3,
	})
	listed := f.do(t, http.MethodGet, f.libraryPath("/copies?limit=10"), f.tenant.Volunteer.UserID, nil)

	// assert
	require.Equal(t, http.StatusCreated, registered.Code, registered.Body.String())
	assert.NotEmpty(t, registered.Header().Get("Location"))
	assert.Equal(t, http.StatusForbidden, byVolunteer.Code)

	require.Equal(t, http.StatusOK, listed.Code)
	copies := decode[[]struct {
		CopyNumber int    `json:"copy_number"`
		Location   string `json:"location"`
	}](t, listed)
	assert.Len(t, copies, 2)
}

func Test_Catalog_Reads_Are_Public_And_Writes_Need_The_Capability(t *testing.T) {
	// setup
	f := givenAPI(t)
	edition := map[string]any{"isbn": GivenISBN13(), "title": "Domain Modeling Made Functional"}

	// act
	byISBN := f.do(t, http.MethodGet, "/api/v1/catalog/isbn/"+f.edition.ISBN13, uuid.Nil, nil)
	anonymousWrite := f.do(t, http.MethodPut, "/api/v1/catalog/editions", uuid.Nil, edition)
	strangerWrite := f.do(t, http.MethodPut, "/api/v1/catalog/editions", GivenUniqueID(t), edition)
	systemWrite := f.do(t, http.MethodPut, "/api/v1/catalog/editions", access.SystemUserID, edition)

	// assert
	require.Equal(t, http.StatusOK, byISBN.Code, byISBN.Body.String())
	assert.Equal(t, f.edition.ID, decode[struct {
		ID uuid.UUID `json:"id"`
	}](t, byISBN).ID)
	assert.Equal(t, http.StatusUnauthorized, anonymousWrite.Code)
	assert.Equal(t, http.StatusForbidden, strangerWrite.Code)
	assert.Equal(t, http.StatusOK, systemWrite.Code, systemWrite.Body.String())
}

func Test_Invalid_Catalog_Input_Is_Unprocessable(t *testing.T) {
	// setup
	f := givenAPI(t)

	// act
	rec := f.do(t, http.MethodPut, "/api/v1/catalog/editions", access.SystemUserID,
		map[string]any{"isbn": "978-0-00-000000-1", "title": "Broken Checksum"})

	// assert
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "UNPROCESSABLE", decode[errorBody](t, rec).Error.Code)
}

func Test_Library_Creation_Is_Reserved_To_The_System_Identity(t *testing.T) {
	// setup
	f := givenAPI(t)
	ownerID := GivenUniqueID(t)
	body := map[string]any{"code": "new-branch", "name": "New Branch", "owner_user_id": ownerID}

	// act
	byOwner := f.do(t, http.MethodPost, "/api/v1/libraries", f.tenant.Owner.UserID, body)
	bySystem := f.do(t, http.MethodPost, "/api/v1/libraries", access.SystemUserID, body)
	duplicate := f.do(t, http.MethodPost, "/api/v1/libraries", access.SystemUserID, body)

	// assert
	assert.Equal(t, http.StatusForbidden, byOwner.Code)
	require.Equal(t, http.StatusCreated, bySystem.Code, bySystem.Body.String())
	assert.Equal(t, "NEW-BRANCH", decode[struct {
		Code string `json:"code"`
	}](t, bySystem).Code)
	assert.Equal(t, http.StatusConflict, duplicate.Code)
	assert.Equal(t, "CONFLICT", decode[errorBody](t, duplicate).Error.Code)
}

func Test_Requests_Are_Logged(t *testing.T) {
	// setup
	f := givenAPI(t)

	// act
	f.checkout(t, 0)

	// assert
	records := f.logs.RecordsWithMessage("request handled")
	require.Len(t, records, 1)
	assert.Equal(t, "/api/v1/libraries/:library_id/checkouts", records[0].Attrs["path"])
	assert.EqualValues(t, http.StatusCreated, records[0].Attrs["status"])
}

func Test_CORS_Preflight_Allows_The_Configured_Origin(t *testing.T) {
	// setup
	f := givenAPI(t)
	req := httptest.NewRequest(http.MethodOptions, f.libraryPath("/checkouts"), nil)
	req.Header.Set("Origin", "https://desk.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	// act
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	// assert
	assert.Equal(t, "https://desk.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}

func Test_ToHTTPStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{core.ErrNotAuthorized, http.StatusForbidden},
		{core.ErrNotFound, http.StatusNotFound},
		{core.ErrTransactionNotFound, http.StatusNotFound},
		{errors.Join(core.ErrInvalidInput, errors.New("title: required")), http.StatusUnprocessableEntity},
		{core.ErrRenewalLimitReached, http.StatusConflict},
		{core.ErrCapacityExceeded, http.StatusConflict},
		{errors.Join(core.ErrConcurrentModification, errors.New("lock timeout")), http.StatusConflict},
		{core.ErrConflict, http.StatusConflict},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.Join(core.ErrOperationFailed, errors.New("connection reset")), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.status, httpapi.ToHTTPStatus(tc.err))
		})
	}
}
