package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/chmcp/companies-house-mcp/pkg/gateway"
)

// Tool argument structs.

type searchArgs struct {
	Query        string `json:"query" validate:"required,max=200"`
	ItemsPerPage int    `json:"items_per_page" validate:"gte=0,lte=100"`
	StartIndex   int    `json:"start_index" validate:"gte=0"`
}

type companyArgs struct {
	CompanyNumber string `json:"company_number" validate:"required,alphanum,max=10"`
}

type pageArgs struct {
	CompanyNumber string `json:"company_number" validate:"required,alphanum,max=10"`
	ItemsPerPage  int    `json:"items_per_page" validate:"gte=0,lte=100"`
	StartIndex    int    `json:"start_index" validate:"gte=0"`
}

type officersArgs struct {
	pageArgs
	RegisterType string `json:"register_type" validate:"omitempty,oneof=directors secretaries llp-members"`
	OrderBy      string `json:"order_by" validate:"omitempty,oneof=appointed_on resigned_on surname"`
}

type filingArgs struct {
	pageArgs
	Category string `json:"category" validate:"omitempty,max=200"`
}

type statsArgs struct {
	Since string `json:"since" validate:"omitempty,datetime=2006-01-02"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"search_companies":                     handleSearchCompanies,
	"get_company_profile":                  handleCompanyProfile,
	"get_officers":                         handleOfficers,
	"get_filing_history":                   handleFilingHistory,
	"get_charges":                          handleCharges,
	"get_persons_with_significant_control": handlePSC,
	"search_officers":                      handleSearchOfficers,
	"gateway_stats":                        handleGatewayStats,
}

// Tools returns the tool catalogue in a stable order.
func Tools() []ToolDefinition {
	out := make([]ToolDefinition, len(allTools))
	copy(out, allTools)
	return out
}

func companyNumberProp() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Companies House company number, e.g. 00000006 or SC123456",
	}
}

func paginationProps(props map[string]any) map[string]any {
	props["items_per_page"] = map[string]any{
		"type":        "integer",
		"minimum":     0,
		"maximum":     100,
		"description": "Results per page (optional, registry default when omitted)",
	}
	props["start_index"] = map[string]any{
		"type":        "integer",
		"minimum":     0,
		"description": "Zero-based index of the first result (optional)",
	}
	return props
}

func companyPageSchema(extra map[string]any) map[string]any {
	props := map[string]any{"company_number": companyNumberProp()}
	for k, v := range extra {
		props[k] = v
	}
	return map[string]any{
		"type":       "object",
		"required":   []string{"company_number"},
		"properties": paginationProps(props),
	}
}

func searchSchema(what string) map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"query"},
		"properties": paginationProps(map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": what,
			},
		}),
	}
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "search_companies",
		Description: "Search the Companies House register for companies by name or number.",
		InputSchema: searchSchema("Company name or number to search for"),
	},
	{
		Name:        "get_company_profile",
		Description: "Get the registered profile of a company: status, type, incorporation date, registered office, SIC codes and filing deadlines.",
		InputSchema: map[string]any{
			"type":       "object",
			"required":   []string{"company_number"},
			"properties": map[string]any{"company_number": companyNumberProp()},
		},
	},
	{
		Name:        "get_officers",
		Description: "List a company's officers (directors, secretaries, LLP members) with appointment details.",
		InputSchema: companyPageSchema(map[string]any{
			"register_type": map[string]any{
				"type":        "string",
				"enum":        []string{"directors", "secretaries", "llp-members"},
				"description": "Restrict to one register (optional)",
			},
			"order_by": map[string]any{
				"type":        "string",
				"enum":        []string{"appointed_on", "resigned_on", "surname"},
				"description": "Sort order (optional)",
			},
		}),
	},
	{
		Name:        "get_filing_history",
		Description: "List a company's filing history, newest first.",
		InputSchema: companyPageSchema(map[string]any{
			"category": map[string]any{
				"type":        "string",
				"description": "Comma-separated filing categories, e.g. accounts,confirmation-statement (optional)",
			},
		}),
	},
	{
		Name:        "get_charges",
		Description: "List charges (mortgages and other security) registered against a company.",
		InputSchema: companyPageSchema(nil),
	},
	{
		Name:        "get_persons_with_significant_control",
		Description: "List a company's persons with significant control (beneficial owners).",
		InputSchema: companyPageSchema(nil),
	},
	{
		Name:        "search_officers",
		Description: "Search for company officers by name across the register.",
		InputSchema: searchSchema("Officer name to search for"),
	},
	{
		Name:        "gateway_stats",
		Description: "Show the local request budget, response cache statistics and per-operation call counts.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format for call counts (optional, defaults to the last 24 hours)",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

// gatewayErrorResult renders a failed registry call. Only the classified,
// display-safe message reaches the caller.
func gatewayErrorResult(err error) ToolCallResult {
	var gerr *gateway.Error
	if !errors.As(err, &gerr) {
		return errorResult("Error: internal error")
	}
	text := "Error: " + gerr.Message
	if hint := gerr.Hint(); hint != "" {
		text += " (" + hint + ")"
	}
	return errorResult(text)
}

// decodeArgs unmarshals and validates tool arguments into v.
func (s *Server) decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describeViolation(fe))
			}
			return errors.New("invalid arguments: " + strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func describeViolation(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "alphanum":
		return fe.Field() + " must contain only letters and digits"
	case "datetime":
		return fe.Field() + " must be a date in YYYY-MM-DD format"
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
}

func handleSearchCompanies(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args searchArgs
	if err := s.decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}
	res, err := s.registry.SearchCompanies(ctx, gateway.SearchParams{
		Query:        args.Query,
		ItemsPerPage: args.ItemsPerPage,
		StartIndex:   args.StartIndex,
	})
	if err != nil {
		return gatewayErrorResult(err)
	}
	return textResult(formatCompanySearch(args.Query, res))
}

func handleCompanyProfile(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args companyArgs
	if err := s.decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}
	res, err := s.registry.CompanyProfile(ctx, args.CompanyNumber)
	if err != nil {
		return gatewayErrorResult(err)
	}
	return textResult(formatCompanyProfile(res))
}

func handleOfficers(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args officersArgs
	if err := s.decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}
	res, err := s.registry.Officers(ctx, gateway.OfficersParams{
		CompanyNumber: args.CompanyNumber,
		ItemsPerPage:  args.ItemsPerPage,
		StartIndex:    args.StartIndex,
		RegisterType:  args.RegisterType,
		OrderBy:       args.OrderBy,
	})
	if err != nil {
		return gatewayErrorResult(err)
	}
	return textResult(formatOfficers(args.CompanyNumber, res))
}

func handleFilingHistory(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args filingArgs
	if err := s.decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}
	res, err := s.registry.FilingHistory(ctx, gateway.FilingHistoryParams{
		CompanyNumber: args.CompanyNumber,
		Category:      args.Category,
		ItemsPerPage:  args.ItemsPerPage,
		StartIndex:    args.StartIndex,
	})
	if err != nil {
		return gatewayErrorResult(err)
	}
	return textResult(formatFilingHistory(args.CompanyNumber, res))
}

func handleCharges(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args pageArgs
	if err := s.decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}
	res, err := s.registry.Charges(ctx, gateway.PageParams{
		CompanyNumber: args.CompanyNumber,
		ItemsPerPage:  args.ItemsPerPage,
		StartIndex:    args.StartIndex,
	})
	if err != nil {
		return gatewayErrorResult(err)
	}
	return textResult(formatCharges(args.CompanyNumber, res))
}

func handlePSC(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args pageArgs
	if err := s.decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}
	res, err := s.registry.PersonsWithSignificantControl(ctx, gateway.PageParams{
		CompanyNumber: args.CompanyNumber,
		ItemsPerPage:  args.ItemsPerPage,
		StartIndex:    args.StartIndex,
	})
	if err != nil {
		return gatewayErrorResult(err)
	}
	return textResult(formatPSCs(args.CompanyNumber, res))
}

func handleSearchOfficers(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args searchArgs
	if err := s.decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}
	res, err := s.registry.SearchOfficers(ctx, gateway.SearchParams{
		Query:        args.Query,
		ItemsPerPage: args.ItemsPerPage,
		StartIndex:   args.StartIndex,
	})
	if err != nil {
		return gatewayErrorResult(err)
	}
	return textResult(formatOfficerSearch(args.Query, res))
}

func handleGatewayStats(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args statsArgs
	if err := s.decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}

	var b strings.Builder
	b.WriteString(formatBudget(s.registry.BudgetSnapshot()))
	b.WriteString("\n")
	b.WriteString(formatCacheStats(s.registry.CacheStats()))

	if s.ledger == nil {
		return textResult(b.String())
	}

	since := time.Now().Add(-24 * time.Hour)
	if args.Since != "" {
		// Already validated.
		since, _ = time.Parse("2006-01-02", args.Since)
	}
	rows, err := s.ledger.Summary(ctx, since)
	if err != nil {
		s.log.Error().Err(err).Msg("gateway_stats summary")
		return errorResult("Error fetching call summary")
	}
	b.WriteString("\n")
	b.WriteString(FormatSummary(rows))
	return textResult(b.String())
}
