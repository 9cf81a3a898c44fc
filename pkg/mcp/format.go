package mcp

import (
	"fmt"
	"strings"

	"github.com/chmcp/companies-house-mcp/pkg/budget"
	"github.com/chmcp/companies-house-mcp/pkg/models"
)

func formatAddress(a models.Address) string {
	parts := make([]string, 0, 8)
	for _, p := range []string{a.CareOf, a.POBox, a.Premises, a.AddressLine1, a.AddressLine2, a.Locality, a.Region, a.PostalCode, a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func formatPartialDate(d *models.PartialDate) string {
	if d == nil || d.Year == 0 {
		return ""
	}
	if d.Month == 0 {
		return fmt.Sprintf("%d", d.Year)
	}
	return fmt.Sprintf("%02d/%d", d.Month, d.Year)
}

// humanize turns registry enum values like "private-limited-guarant-nsc" into
// readable text.
func humanize(v string) string {
	return strings.ReplaceAll(strings.ReplaceAll(v, "-", " "), "_", " ")
}

// line writes "label: value" when value is set.
func line(b *strings.Builder, indent, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s%s: %s\n", indent, label, value)
}

func pageFooter(b *strings.Builder, shown, total, start int) {
	if total > shown {
		fmt.Fprintf(b, "\nShowing %d-%d of %d. Use start_index to page.\n", start+1, start+shown, total)
	}
}

func formatCompanySearch(query string, res *models.CompanySearch) string {
	if len(res.Items) == 0 {
		return fmt.Sprintf("No companies found for %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d companies for %q:\n\n", res.TotalResults, query)
	for _, c := range res.Items {
		fmt.Fprintf(&b, "%s (%s)\n", c.Title, c.CompanyNumber)
		line(&b, "  ", "Status", humanize(c.CompanyStatus))
		line(&b, "  ", "Type", humanize(c.CompanyType))
		line(&b, "  ", "Incorporated", c.DateOfCreation)
		line(&b, "  ", "Dissolved", c.DateOfCessation)
		addr := c.AddressSnippet
		if addr == "" {
			addr = formatAddress(c.Address)
		}
		line(&b, "  ", "Address", addr)
	}
	pageFooter(&b, len(res.Items), res.TotalResults, res.StartIndex)
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func formatCompanyProfile(p *models.CompanyProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", p.CompanyName, p.CompanyNumber)
	line(&b, "", "Status", humanize(p.CompanyStatus))
	line(&b, "", "Status detail", humanize(p.CompanyStatusDetail))
	line(&b, "", "Type", humanize(p.Type))
	line(&b, "", "Jurisdiction", humanize(p.Jurisdiction))
	line(&b, "", "Incorporated", p.DateOfCreation)
	line(&b, "", "Dissolved", p.DateOfCessation)
	line(&b, "", "Registered office", formatAddress(p.RegisteredOfficeAddr))
	if p.RegisteredOfficeIsInDispute {
		b.WriteString("Registered office is in dispute\n")
	}
	if len(p.SICCodes) > 0 {
		line(&b, "", "SIC codes", strings.Join(p.SICCodes, ", "))
	}

	if a := p.Accounts; a != nil {
		b.WriteString("Accounts:\n")
		line(&b, "  ", "Last made up to", a.LastAccounts.MadeUpTo)
		line(&b, "  ", "Last type", humanize(a.LastAccounts.Type))
		line(&b, "  ", "Next due", a.NextDue)
		if a.Overdue {
			b.WriteString("  OVERDUE\n")
		}
	}
	if cs := p.ConfirmationStatement; cs != nil {
		b.WriteString("Confirmation statement:\n")
		line(&b, "  ", "Last made up to", cs.LastMadeUpTo)
		line(&b, "  ", "Next due", cs.NextDue)
		if cs.Overdue {
			b.WriteString("  OVERDUE\n")
		}
	}

	fmt.Fprintf(&b, "Has charges: %s\n", yesNo(p.HasCharges))
	fmt.Fprintf(&b, "Insolvency history: %s\n", yesNo(p.HasInsolvencyHistory))
	if p.HasBeenLiquidated {
		b.WriteString("Has been liquidated\n")
	}

	if len(p.PreviousCompanyNames) > 0 {
		b.WriteString("Previous names:\n")
		for _, n := range p.PreviousCompanyNames {
			fmt.Fprintf(&b, "  %s (%s to %s)\n", n.Name, n.EffectiveFrom, n.CeasedOn)
		}
	}
	return b.String()
}

func formatOfficers(companyNumber string, res *models.OfficerList) string {
	if len(res.Items) == 0 {
		return fmt.Sprintf("No officers found for company %s.", companyNumber)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Officers of %s (%d active, %d resigned):\n\n", companyNumber, res.ActiveCount, res.ResignedCount)
	for _, o := range res.Items {
		fmt.Fprintf(&b, "%s - %s\n", o.Name, humanize(o.OfficerRole))
		line(&b, "  ", "Appointed", o.AppointedOn)
		line(&b, "  ", "Resigned", o.ResignedOn)
		line(&b, "  ", "Occupation", o.Occupation)
		line(&b, "  ", "Nationality", o.Nationality)
		line(&b, "  ", "Country of residence", o.CountryOfResidence)
		line(&b, "  ", "Born", formatPartialDate(o.DateOfBirth))
		line(&b, "  ", "Address", formatAddress(o.Address))
	}
	pageFooter(&b, len(res.Items), res.TotalResults, res.StartIndex)
	return b.String()
}

// filingDescription substitutes description_values into the registry's
// description key when it carries no readable text of its own.
func filingDescription(f models.Filing) string {
	desc := humanize(f.Description)
	if v, ok := f.DescriptionValues["description"]; ok && v != "" {
		return v
	}
	if d, ok := f.DescriptionValues["made_up_date"]; ok && d != "" {
		desc += " made up to " + d
	}
	return desc
}

func formatFilingHistory(companyNumber string, res *models.FilingHistory) string {
	if len(res.Items) == 0 {
		return fmt.Sprintf("No filings found for company %s.", companyNumber)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Filing history of %s:\n\n", companyNumber)
	for _, f := range res.Items {
		fmt.Fprintf(&b, "%s  %-6s %s\n", f.Date, f.Type, filingDescription(f))
		line(&b, "  ", "Category", humanize(f.Category))
		if f.Pages > 0 {
			fmt.Fprintf(&b, "  Pages: %d\n", f.Pages)
		}
	}
	pageFooter(&b, len(res.Items), res.TotalCount, res.StartIndex)
	return b.String()
}

func formatCharges(companyNumber string, res *models.ChargeList) string {
	if len(res.Items) == 0 {
		return fmt.Sprintf("No charges registered against company %s.", companyNumber)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Charges against %s (%d total, %d satisfied, %d part satisfied):\n\n",
		companyNumber, res.TotalCount, res.SatisfiedCount, res.PartSatisfiedCount)
	for _, c := range res.Items {
		id := c.ChargeCode
		if id == "" {
			id = fmt.Sprintf("#%d", c.ChargeNumber)
		}
		fmt.Fprintf(&b, "Charge %s - %s\n", id, humanize(c.Status))
		line(&b, "  ", "Classification", c.Classification.Description)
		line(&b, "  ", "Created", c.CreatedOn)
		line(&b, "  ", "Delivered", c.DeliveredOn)
		line(&b, "  ", "Satisfied", c.SatisfiedOn)
		if len(c.PersonsEntitled) > 0 {
			names := make([]string, len(c.PersonsEntitled))
			for i, p := range c.PersonsEntitled {
				names[i] = p.Name
			}
			line(&b, "  ", "Persons entitled", strings.Join(names, "; "))
		}
		line(&b, "  ", "Particulars", c.Particulars.Description)
	}
	return b.String()
}

func formatPSCs(companyNumber string, res *models.PSCList) string {
	if len(res.Items) == 0 {
		return fmt.Sprintf("No persons with significant control found for company %s.", companyNumber)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Persons with significant control of %s (%d active, %d ceased):\n\n",
		companyNumber, res.ActiveCount, res.CeasedCount)
	for _, p := range res.Items {
		fmt.Fprintf(&b, "%s (%s)\n", p.Name, humanize(p.Kind))
		line(&b, "  ", "Notified", p.NotifiedOn)
		line(&b, "  ", "Ceased", p.CeasedOn)
		line(&b, "  ", "Nationality", p.Nationality)
		line(&b, "  ", "Country of residence", p.CountryOfResidence)
		line(&b, "  ", "Born", formatPartialDate(p.DateOfBirth))
		line(&b, "  ", "Address", formatAddress(p.Address))
		if id := p.Identification; id != nil {
			line(&b, "  ", "Legal form", id.LegalForm)
			line(&b, "  ", "Registration number", id.RegistrationNumber)
		}
		for _, n := range p.NaturesOfControl {
			fmt.Fprintf(&b, "  - %s\n", humanize(n))
		}
	}
	pageFooter(&b, len(res.Items), res.TotalResults, res.StartIndex)
	return b.String()
}

func formatOfficerSearch(query string, res *models.OfficerSearch) string {
	if len(res.Items) == 0 {
		return fmt.Sprintf("No officers found for %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d officers for %q:\n\n", res.TotalResults, query)
	for _, o := range res.Items {
		b.WriteString(o.Title + "\n")
		line(&b, "  ", "Appointments", fmt.Sprint(o.AppointmentCount))
		line(&b, "  ", "Born", formatPartialDate(o.DateOfBirth))
		line(&b, "  ", "Address", o.AddressSnippet)
	}
	pageFooter(&b, len(res.Items), res.TotalResults, res.StartIndex)
	return b.String()
}

// formatBudget formats the rate budget state as text.
func formatBudget(s budget.Snapshot) string {
	return fmt.Sprintf("Request Budget\n"+
		"  Capacity:  %d per %s\n"+
		"  Available: %.1f\n",
		s.Capacity, s.Window, s.Available)
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Response Cache\n"+
		"  Entries:   %d / %d\n"+
		"  Hits:      %d\n"+
		"  Misses:    %d\n"+
		"  Evictions: %d\n"+
		"  Hit Rate:  %.1f%%\n",
		stats.Entries, stats.MaxEntries, stats.Hits, stats.Misses, stats.Evictions, hitRate)
}

// FormatSummary formats per-operation call summaries as a text table.
func FormatSummary(rows []models.OperationSummary) string {
	if len(rows) == 0 {
		return "No calls recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-18s %8s %8s %9s %7s %12s\n",
		"Operation", "Calls", "Hits", "Upstream", "Errors", "Avg Latency")
	b.WriteString(strings.Repeat("-", 67) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-18s %8d %8d %9d %7d %10.0fms\n",
			r.Operation, r.Calls, r.CacheHits, r.Upstream, r.Errors, r.AvgLatencyMs)
	}
	return b.String()
}
