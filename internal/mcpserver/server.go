package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ultralight/host/internal/apps"
	"github.com/ultralight/host/internal/auth"
	"github.com/ultralight/host/internal/billing"
	"github.com/ultralight/host/internal/calllog"
	"github.com/ultralight/host/internal/cryptoenv"
	"github.com/ultralight/host/internal/model"
	"github.com/ultralight/host/internal/permissions"
	"github.com/ultralight/host/internal/ratelimit"
	"github.com/ultralight/host/internal/sandbox"
	"github.com/ultralight/host/internal/session"
	"github.com/ultralight/host/internal/setup"
)

const (
	protocolVersion     = "2025-03-26"
	serverName          = "ultralight-host"
	serverVersion       = "1.0.0"
	defaultInstructions = "No documentation provided for this app."
)

// CapabilityProvider builds the per-request capability adapters the
// Sandbox Gateway and SDK tools bind into a Surface. Concrete
// implementations (backed by the relational store, a BYOK HTTP client,
// and a local JSON-RPC loopback for inter-app calls) live in
// internal/adapters.
type CapabilityProvider interface {
	KVStore(appID, userID string) sandbox.KVStore
	MemoryStore(userID string) sandbox.MemoryStore
	InterAppCaller(bearerCredential string) sandbox.InterAppCaller
	AiCaller(profile *setup.UserProfile, decryptedKey string) sandbox.AiCaller
}

// Server is the Dispatcher (C12): it owns every other pipeline
// component and wires the admission-through-billing chain described in
// spec.md §2 and §4.
type Server struct {
	apps         *apps.Loader
	verifier     *auth.Verifier
	perms        *permissions.Resolver
	rateLimiter  *ratelimit.Limiter
	orchestrator *setup.Orchestrator
	profiles     setup.ProfileStore
	gateway      *sandbox.Gateway
	settler      *billing.Settler
	calls        *calllog.Logger
	sequencer    *session.Sequencer
	caps         CapabilityProvider
	envelope     *cryptoenv.Envelope
	baseURL      string
	log          zerolog.Logger
	now          func() time.Time
}

// New builds a Server from its collaborators.
func New(
	appLoader *apps.Loader,
	verifier *auth.Verifier,
	perms *permissions.Resolver,
	rateLimiter *ratelimit.Limiter,
	orchestrator *setup.Orchestrator,
	profiles setup.ProfileStore,
	gateway *sandbox.Gateway,
	settler *billing.Settler,
	calls *calllog.Logger,
	sequencer *session.Sequencer,
	caps CapabilityProvider,
	envelope *cryptoenv.Envelope,
	baseURL string,
	log zerolog.Logger,
) *Server {
	return &Server{
		apps:         appLoader,
		verifier:     verifier,
		perms:        perms,
		rateLimiter:  rateLimiter,
		orchestrator: orchestrator,
		profiles:     profiles,
		gateway:      gateway,
		settler:      settler,
		calls:        calls,
		sequencer:    sequencer,
		caps:         caps,
		envelope:     envelope,
		baseURL:      baseURL,
		log:          log,
		now:          time.Now,
	}
}

// Routes mounts the MCP transport at /mcp/{appId} and the per-app
// discovery document at /a/{appId}/.well-known/mcp.json.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/mcp/{appId}", s.handlePost)
	r.Get("/mcp/{appId}", s.handleGetNotAllowed)
	r.Delete("/mcp/{appId}", s.handleDelete)
	r.Get("/a/{appId}/.well-known/mcp.json", s.handleDiscovery)
	return r
}

// handleDiscovery serves the per-app discovery document (spec.md §6).
// Private apps require the caller to be the owner; a missing or
// non-owner Authorization header is treated as not-found rather than
// forbidden, so a private app's existence isn't leaked.
func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appId")

	app, err := s.apps.FindByID(r.Context(), appID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if app == nil {
		http.Error(w, "app not found", http.StatusNotFound)
		return
	}

	if app.Visibility == model.VisibilityPrivate {
		identity, err := s.verifier.Verify(r.Context(), r.Header.Get("Authorization"))
		if err != nil || identity.UserID != app.OwnerID {
			http.Error(w, "app not found", http.StatusNotFound)
			return
		}
	}

	descriptors := make([]toolDescriptorJSON, 0, len(app.Tools()))
	for _, t := range app.Tools() {
		descriptors = append(descriptors, toolDescriptorJSON{
			Name:         t.Name,
			Title:        t.Title,
			Description:  t.Description,
			InputSchema:  t.InputSchema,
			OutputSchema: t.OutputSchema,
		})
	}

	doc := map[string]any{
		"name": app.Slug,
		"transport": map[string]any{
			"type": "http-post",
			"url":  fmt.Sprintf("/mcp/%s", app.ID),
		},
		"capabilities":    map[string]any{"tools": map[string]any{"listChanged": false}, "resources": map[string]any{"subscribe": false, "listChanged": false}},
		"tools_count":     len(descriptors) + len(sdkTools),
		"app_tools":       descriptors,
		"sdk_tools":       sdkToolNames(),
		"resources_count": 1,
	}
	if app.SkillsMD != "" {
		doc["description"] = app.SkillsMD
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}

func (s *Server) handleGetNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "POST, DELETE")
	w.WriteHeader(http.StatusMethodNotAllowed)
}

// handleDelete is a no-op acknowledgement: session termination is a
// client-side formality in this stateless transport (spec.md §4.1).
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appId")

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, CodeParseError, "Parse error: Invalid JSON", nil)
		return
	}
	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		s.writeError(w, req.ID, CodeInvalidRequest, "Invalid request", nil)
		return
	}

	if req.Method == "notifications/initialized" {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	ctx := r.Context()
	authHeader := r.Header.Get("Authorization")
	clientIP := clientIPFrom(r)

	identity, app, err := s.resolveIdentityAndApp(ctx, authHeader, appID)
	if err != nil {
		s.writeRPCErr(w, req.ID, err)
		return
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(ctx, w, req, identity, app)
	case "tools/list":
		s.handleToolsList(ctx, w, req, identity, app)
	case "tools/call":
		s.handleToolsCall(ctx, w, req, identity, app, authHeader, clientIP)
	case "resources/list":
		s.handleResourcesList(w, req, app)
	case "resources/read":
		s.handleResourcesRead(w, req, app)
	default:
		s.writeError(w, req.ID, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}
}

// resolveIdentityAndApp runs the Token Verifier and App Loader
// concurrently (spec.md §2's "Dispatcher → Token Verifier ∥ App
// Loader"), then checks suspension/visibility-hiding at admission.
func (s *Server) resolveIdentityAndApp(ctx context.Context, authHeader, appID string) (*auth.Identity, *model.App, error) {
	var identity *auth.Identity
	var app *model.App

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		i, err := s.verifier.Verify(gctx, authHeader)
		identity = i
		return err
	})
	g.Go(func() error {
		a, err := s.apps.FindByID(gctx, appID)
		app = a
		return err
	})

	if err := g.Wait(); err != nil {
		var verr *auth.VerifyError
		if isAuthError(err, &verr) {
			return nil, nil, newAuthRPCError(verr)
		}
		s.log.Warn().Err(err).Str("appId", appID).Msg("app lookup failed")
		return nil, nil, newRPCError(CodeNotFound, "App not found")
	}

	if app == nil {
		return nil, nil, newRPCError(CodeNotFound, "App not found")
	}
	if app.HostingSuspended {
		return nil, nil, newRPCError(CodeNotFound, "App not found")
	}

	return identity, app, nil
}

func (s *Server) handleInitialize(ctx context.Context, w http.ResponseWriter, req JSONRPCRequest, identity *auth.Identity, app *model.App) {
	rlReq := ratelimit.Request{
		UserID:    identity.UserID,
		AppID:     app.ID,
		OwnerID:   app.OwnerID,
		Method:    "initialize",
		Tier:      identity.Tier,
		AppLimits: app.RateLimitConfig,
	}
	if d := s.rateLimiter.Check(ctx, rlReq); !d.Allowed {
		s.writeRateLimited(w, req.ID, d)
		return
	}

	sessionID := uuid.NewString()
	w.Header().Set("Mcp-Session-Id", sessionID)

	instructions := app.SkillsMD
	if instructions == "" {
		instructions = defaultInstructions
	}

	result := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools":     map[string]any{"listChanged": false},
			"resources": map[string]any{"subscribe": false, "listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": serverVersion,
		},
		"instructions": instructions,
	}
	s.writeResult(w, req.ID, result)
}

func (s *Server) handleToolsList(ctx context.Context, w http.ResponseWriter, req JSONRPCRequest, identity *auth.Identity, app *model.App) {
	rlReq := ratelimit.Request{
		UserID:    identity.UserID,
		AppID:     app.ID,
		OwnerID:   app.OwnerID,
		Method:    "tools/list",
		Tier:      identity.Tier,
		AppLimits: app.RateLimitConfig,
	}
	if d := s.rateLimiter.Check(ctx, rlReq); !d.Allowed {
		s.writeRateLimited(w, req.ID, d)
		return
	}

	resolved, err := s.perms.Resolve(ctx, identity.UserID, app)
	if err != nil {
		s.writeError(w, req.ID, CodeInternalError, "internal error", nil)
		return
	}
	if resolved != nil && len(resolved.Allowed) == 0 {
		s.writeError(w, req.ID, CodeNotFound, "App not found", nil)
		return
	}

	descriptors := make([]toolDescriptorJSON, 0, len(app.Tools())+len(sdkTools))
	for _, t := range app.Tools() {
		descriptors = append(descriptors, toolDescriptorJSON{
			Name:         t.Name,
			Title:        t.Title,
			Description:  t.Description,
			InputSchema:  t.InputSchema,
			OutputSchema: t.OutputSchema,
		})
	}
	for _, tool := range sdkTools {
		descriptors = append(descriptors, tool.descriptor)
	}

	s.writeResult(w, req.ID, map[string]any{"tools": descriptors})
}

// toolsCallParams is the tools/call request shape.
type toolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// extractSpecialArgs pops the host-reserved _session_id/_user_query
// keys out of args before the remaining map reaches the sandbox or an
// SDK tool handler, per spec.md §4.10.
func extractSpecialArgs(args map[string]any) (sessionID, userQuery string) {
	if v, ok := args["_session_id"].(string); ok {
		sessionID = v
	}
	if v, ok := args["_user_query"].(string); ok {
		userQuery = v
	}
	delete(args, "_session_id")
	delete(args, "_user_query")
	return sessionID, userQuery
}

func (s *Server) handleToolsCall(ctx context.Context, w http.ResponseWriter, req JSONRPCRequest, identity *auth.Identity, app *model.App, authHeader, clientIP string) {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		s.writeError(w, req.ID, CodeInvalidParams, "Invalid params", nil)
		return
	}
	if params.Arguments == nil {
		params.Arguments = map[string]any{}
	}
	sessionID, userQuery := extractSpecialArgs(params.Arguments)

	start := s.now()
	rec := calllog.Record{
		Timestamp:    start,
		UserID:       identity.UserID,
		AppID:        app.ID,
		AppName:      app.Slug,
		AppVersion:   app.CurrentVersion,
		FunctionName: params.Name,
		Method:       "tools/call",
		Tier:         identity.Tier,
		InputArgs:    params.Arguments,
		SessionID:    sessionID,
		UserQuery:    userQuery,
	}
	logAndRespond := func(result any, rerr error) {
		rec.DurationMs = s.now().Sub(start).Milliseconds()
		if sessionID != "" {
			rec.SequenceNumber = s.sequencer.Next(sessionID)
		}
		if rerr != nil {
			rec.Success = false
			rec.ErrorMessage = rerr.Error()
			s.calls.Log(rec)
			s.writeRPCErr(w, req.ID, rerr)
			return
		}
		rec.Success = true
		if b, err := json.Marshal(result); err == nil {
			rec.Output = string(b)
			rec.ResponseBytes = len(b)
		}
		rec.Truncate()
		s.calls.Log(rec)
		s.writeResult(w, req.ID, result)
	}

	if strings.HasPrefix(params.Name, "ultralight.") {
		s.callSDKTool(ctx, params, identity, app, authHeader, logAndRespond)
		return
	}

	if !scopeAllows(identity.AppScope, app.ID) || !scopeAllows(identity.FunctionScope, params.Name) {
		logAndRespond(nil, newRPCError(CodeForbidden, "Permission denied: token scope"))
		return
	}

	resolved, err := s.perms.Resolve(ctx, identity.UserID, app)
	if err != nil {
		logAndRespond(nil, newRPCError(CodeInternalError, "internal error"))
		return
	}
	var row *model.PermissionRow
	if resolved != nil {
		if !resolved.CanCall(params.Name) {
			logAndRespond(nil, newRPCError(CodeNotFound, "App not found"))
			return
		}
		row = resolved.RowFor(params.Name)
	}

	rlReq := ratelimit.Request{
		UserID:    identity.UserID,
		AppID:     app.ID,
		OwnerID:   app.OwnerID,
		Method:    "tools/call",
		Tier:      identity.Tier,
		AppLimits: app.RateLimitConfig,
	}
	if d := s.rateLimiter.Check(ctx, rlReq); !d.Allowed {
		rec.DurationMs = s.now().Sub(start).Milliseconds()
		rec.Success = false
		rec.ErrorMessage = fmt.Sprintf("rate limit exceeded: %s", d.LimitName)
		s.calls.Log(rec)
		s.writeRateLimited(w, req.ID, d)
		return
	}

	if row != nil {
		decision := permissions.Evaluate(row, clientIP, s.now(), params.Arguments)
		if !decision.Allowed {
			logAndRespond(nil, newRPCError(CodeForbidden, "Permission denied: "+decision.Reason))
			return
		}
		if row.BudgetLimit != nil {
			s.perms.IncrementBudget(ctx, identity.UserID, app.ID, params.Name)
		}
	}

	setupResult, err := s.orchestrator.Run(ctx, app, identity.UserID)
	if err != nil {
		var missing *setup.MissingSecretsError
		if errors.As(err, &missing) {
			logAndRespond(nil, &rpcError{
				code:    CodeMissingSecrets,
				message: "Missing required secrets",
				data:    map[string]any{"type": "MISSING_SECRETS", "missing": missing.Missing},
			})
			return
		}
		logAndRespond(nil, newRPCError(CodeInternalError, "internal error"))
		return
	}

	surface := s.buildSurface(app.ID, identity.UserID, authHeader, setupResult.Profile, setupResult.Env)
	outcome, err := s.gateway.Invoke(ctx, setupResult.Source, params.Name, params.Arguments, surface)
	if err != nil {
		logAndRespond(nil, newRPCError(CodeInternalError, "internal error"))
		return
	}

	rec.DurationMs = outcome.Duration.Milliseconds()
	rec.AICostCents = outcome.AICostCents

	billOutcome := s.settler.Settle(ctx, app, identity.UserID, params.Name, outcome.Success)
	rec.ChargeCents = billOutcome.AmountCents

	if billOutcome.PaymentRequired {
		logAndRespond(toMCPResult(nil, true, billing.PaymentRequiredMessage(billOutcome.AmountCents)), nil)
		return
	}

	if !outcome.Success {
		logAndRespond(toMCPResult(nil, true, outcome.Error), nil)
		return
	}
	logAndRespond(toMCPResult(outcome.Result, false, ""), nil)
}

// callSDKTool dispatches a ultralight.* tool natively, bypassing the
// setup orchestrator, sandbox engine, and billing settler — these are
// host-native conveniences, not priced app-authored functions (see
// DESIGN.md's SDK-tool-surface entry).
func (s *Server) callSDKTool(ctx context.Context, params toolsCallParams, identity *auth.Identity, app *model.App, authHeader string, respond func(any, error)) {
	tool, ok := sdkTools[params.Name]
	if !ok {
		respond(nil, newRPCError(CodeMethodNotFound, fmt.Sprintf("Unknown tool: %s", params.Name)))
		return
	}

	var profile *setup.UserProfile
	if p, err := s.profiles.FetchUserProfile(ctx, identity.UserID); err == nil {
		profile = p
	}
	surface := s.buildSurface(app.ID, identity.UserID, authHeader, profile, nil)

	argsJSON, err := json.Marshal(params.Arguments)
	if err != nil {
		respond(nil, newRPCError(CodeInvalidParams, "invalid arguments"))
		return
	}

	sc := &sdkCallContext{surface: surface, appID: app.ID, userID: identity.UserID}
	result, err := tool.handler(ctx, sc, argsJSON)
	if err != nil {
		respond(nil, err)
		return
	}
	respond(toMCPResult(result, false, ""), nil)
}

// buildSurface assembles the per-request capability surface, wiring a
// real BYOK AI caller only when the caller's profile has a decryptable
// key, per spec.md §4.7.
func (s *Server) buildSurface(appID, userID, authHeader string, profile *setup.UserProfile, env map[string]string) *sandbox.Surface {
	ai := sandbox.AiCaller(sandbox.NoBYOKAiCaller{})
	if profile != nil && profile.BYOKEnabled && profile.BYOKKeyEncrypted != "" {
		if key, _, err := s.envelope.Decrypt(profile.BYOKKeyEncrypted); err == nil && key != "" {
			ai = s.caps.AiCaller(profile, key)
		} else if err != nil {
			s.log.Warn().Err(err).Str("userId", userID).Msg("failed to decrypt BYOK key")
		}
	}
	return sandbox.BuildSurface(
		appID,
		s.caps.KVStore(appID, userID),
		s.caps.MemoryStore(userID),
		ai,
		s.caps.InterAppCaller(authHeader),
		env,
	)
}

// toMCPResult builds the tools/call result envelope per spec.md §6.
func toMCPResult(result any, isError bool, errText string) map[string]any {
	if isError {
		return map[string]any{
			"content": []map[string]any{{"type": "text", "text": errText}},
			"isError": true,
		}
	}
	text := ""
	if b, err := json.Marshal(result); err == nil {
		text = string(b)
	}
	return map[string]any{
		"content":           []map[string]any{{"type": "text", "text": text}},
		"structuredContent": result,
		"isError":           false,
	}
}

func (s *Server) handleResourcesList(w http.ResponseWriter, req JSONRPCRequest, app *model.App) {
	s.writeResult(w, req.ID, map[string]any{
		"resources": []map[string]any{
			{
				"uri":         fmt.Sprintf("ultralight://app/%s/skills.md", app.ID),
				"name":        "skills.md",
				"description": "Auto-generated documentation for this app.",
				"mimeType":    "text/markdown",
			},
		},
	})
}

func (s *Server) handleResourcesRead(w http.ResponseWriter, req JSONRPCRequest, app *model.App) {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(w, req.ID, CodeInvalidParams, "Invalid params", nil)
		return
	}
	want := fmt.Sprintf("ultralight://app/%s/skills.md", app.ID)
	if params.URI != want {
		s.writeError(w, req.ID, CodeNotFound, "Resource not found", nil)
		return
	}
	s.writeResult(w, req.ID, map[string]any{
		"contents": []map[string]any{
			{"uri": want, "mimeType": "text/markdown", "text": app.SkillsMD},
		},
	})
}

func clientIPFrom(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isAuthError(err error, target **auth.VerifyError) bool {
	if verr, ok := err.(*auth.VerifyError); ok {
		*target = verr
		return true
	}
	return false
}

func newAuthRPCError(verr *auth.VerifyError) *rpcError {
	return &rpcError{
		code:    CodeAuthFailed,
		message: verr.Message,
		data:    map[string]any{"type": string(verr.Subtype)},
	}
}

func scopeAllows(scope []string, value string) bool {
	if len(scope) == 0 {
		return true
	}
	for _, s := range scope {
		if s == "*" || s == value {
			return true
		}
	}
	return false
}

// writeResult writes a successful JSON-RPC response with HTTP 200.
func (s *Server) writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	resp := JSONRPCResponse{JSONRPC: jsonrpcVersion, ID: id, Result: mustMarshal(result)}
	json.NewEncoder(w).Encode(resp)
}

// writeError writes a JSON-RPC error response with the HTTP status
// that httpStatusForCode maps code to.
func (s *Server) writeError(w http.ResponseWriter, id json.RawMessage, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusForCode(code))

	errObj := &JSONRPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = mustMarshal(data)
	}
	resp := JSONRPCResponse{JSONRPC: jsonrpcVersion, ID: id, Error: errObj}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) writeRPCErr(w http.ResponseWriter, id json.RawMessage, err error) {
	rerr, ok := err.(*rpcError)
	if !ok {
		s.writeError(w, id, CodeInternalError, err.Error(), nil)
		return
	}
	if rerr.code == CodeAuthFailed {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer resource_metadata="%s/.well-known/oauth-protected-resource"`, s.baseURL))
	}
	s.writeError(w, id, rerr.code, rerr.message, rerr.data)
}

func (s *Server) writeRateLimited(w http.ResponseWriter, id json.RawMessage, d ratelimit.Decision) {
	s.writeError(w, id, CodeRateLimited, fmt.Sprintf("Rate limit exceeded: %s", d.LimitName), map[string]any{
		"resetAt": d.ResetAt.UTC().Format(time.RFC3339),
	})
}
