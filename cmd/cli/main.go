// Command stratactl is the operator CLI for a StrataHub server.
package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/aryan0dhankhar/stratahub/internal/domain"
	"github.com/aryan0dhankhar/stratahub/internal/handler"
	"github.com/aryan0dhankhar/stratahub/internal/security/auth"
	"github.com/aryan0dhankhar/stratahub/internal/service"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "token":
		err = handleToken(args)
	case "tenant":
		err = handleTenant(args)
	case "request":
		err = handleRequest(args)
	case "requests":
		if len(args) > 0 && args[0] == "list" {
			args = args[1:]
		}
		err = listRequests(newAPIClient(), args)
	case "registration":
		err = handleRegistration(args)
	case "registrations":
		if len(args) > 0 && args[0] == "list" {
			args = args[1:]
		}
		err = listRegistrations(newAPIClient(), args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

func handleToken(args []string) error {
	if len(args) < 1 || args[0] != "mint" {
		fmt.Println("Usage: stratactl token mint -tenant <id> -user <id> -role <role>")
		return nil
	}
	fs := flag.NewFlagSet("mint", flag.ExitOnError)
	tenant := fs.String("tenant", "", "tenant ID")
	user := fs.String("user", "", "user ID")
	role := fs.String("role", domain.RoleAdmin, "strata role")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	printOnly := fs.Bool("print", false, "print the token instead of saving it")
	fs.Parse(args[1:])

	token, err := auth.NewTokenManager(os.Getenv("JWT_SECRET"), "stratahub").Issue(*tenant, *user, *role, "", *ttl)
	if err != nil {
		return err
	}
	if *printOnly {
		fmt.Println(token)
		return nil
	}
	if err := saveToken(token); err != nil {
		return err
	}
	fmt.Printf("✓ Token saved for %s (%s) in tenant %s\n", *user, *role, *tenant)
	return nil
}

func handleTenant(args []string) error {
	if len(args) < 1 || args[0] != "delete" {
		fmt.Println("Usage: stratactl tenant delete [-attempts n]")
		return nil
	}
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	attempts := fs.Int("attempts", 3, "runs to try when a deletion stops part way")
	fs.Parse(args[1:])
	return deleteTenant(newAPIClient(), *attempts)
}

// deleteTenant deletes the token's tenant, re-running after a partial
// failure. Deletes are idempotent so each run picks up what is left.
func deleteTenant(c *apiClient, attempts int) error {
	tenantID, err := tenantOf(c.token)
	if err != nil {
		return err
	}
	for i := 1; ; i++ {
		var resp handler.DeletionResponse
		err := c.do("DELETE", "/api/tenants/"+url.PathEscape(tenantID), nil, &resp)
		if resp.Report != nil {
			printReport(resp.Report)
		}
		if err == nil {
			fmt.Printf("✓ Tenant %s deleted\n", tenantID)
			return nil
		}
		if !isPartial(err) || i >= attempts {
			return err
		}
		fmt.Printf("… deletion stopped part way (%v), resuming (%d/%d)\n", err, i+1, attempts)
	}
}

func printReport(r *service.DeletionReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COLLECTION\tDELETED")
	for collection, n := range r.Deleted {
		fmt.Fprintf(w, "%s\t%d\n", collection, n)
	}
	fmt.Fprintf(w, "total\t%d\n", r.Total)
	w.Flush()
	fmt.Printf("chunks committed: %d/%d, blobs purged: %d\n", r.Committed, r.Chunks, r.BlobsPurged)
	if r.BlobPurgeError != "" {
		fmt.Printf("blob purge failed: %s\n", r.BlobPurgeError)
	}
}

func handleRequest(args []string) error {
	if len(args) < 2 {
		fmt.Println("Usage: stratactl request <transition|convert> <request-id> [options]")
		return nil
	}
	c := newAPIClient()
	switch args[0] {
	case "transition":
		fs := flag.NewFlagSet("transition", flag.ExitOnError)
		status := fs.String("status", "", "new status")
		reason := fs.String("reason", "", "reason (required when rejecting)")
		force := fs.Bool("force", false, "record a same-status transition")
		fs.Parse(args[2:])
		return transitionRequest(c, args[1], *status, *reason, *force)
	case "convert":
		return convertRequest(c, args[1])
	default:
		return fmt.Errorf("unknown request command: %s", args[0])
	}
}

func transitionRequest(c *apiClient, id, status, reason string, force bool) error {
	tenantID, err := tenantOf(c.token)
	if err != nil {
		return err
	}
	var req domain.RepairRequest
	body := map[string]any{"status": status, "reason": reason, "force": force}
	if err := c.do("POST", requestPath(tenantID, id)+"/transition", body, &req); err != nil {
		return err
	}
	fmt.Printf("✓ Request %s is now %s (%d history entries)\n", req.ID, req.Status, req.StatusHistory.Len())
	return nil
}

func convertRequest(c *apiClient, id string) error {
	tenantID, err := tenantOf(c.token)
	if err != nil {
		return err
	}
	var out service.Conversion
	if err := c.do("POST", requestPath(tenantID, id)+"/convert", nil, &out); err != nil {
		return err
	}
	fmt.Printf("✓ Request %s converted to project %s\n", out.Request.ID, out.Project.ID)
	return nil
}

func listRequests(c *apiClient, args []string) error {
	fs := flag.NewFlagSet("requests", flag.ExitOnError)
	status := fs.String("status", "", "only requests in this status")
	fs.Parse(args)

	tenantID, err := tenantOf(c.token)
	if err != nil {
		return err
	}
	path := "/api/tenants/" + url.PathEscape(tenantID) + "/repair-requests"
	if *status != "" {
		path += "?status=" + url.QueryEscape(*status)
	}
	var reqs []domain.RepairRequest
	if err := c.do("GET", path, nil, &reqs); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSEVERITY\tTITLE\tCREATED")
	for _, r := range reqs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Status, r.Severity, r.Title, r.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func handleRegistration(args []string) error {
	if len(args) < 2 {
		fmt.Println("Usage: stratactl registration <approve|reject> <registration-id> [options]")
		return nil
	}
	c := newAPIClient()
	switch args[0] {
	case "approve":
		return approveRegistration(c, args[1])
	case "reject":
		fs := flag.NewFlagSet("reject", flag.ExitOnError)
		reason := fs.String("reason", "", "reason shown to the applicant")
		fs.Parse(args[2:])
		return rejectRegistration(c, args[1], *reason)
	default:
		return fmt.Errorf("unknown registration command: %s", args[0])
	}
}

func approveRegistration(c *apiClient, id string) error {
	var out service.Approval
	if err := c.do("POST", "/api/registrations/"+url.PathEscape(id)+"/approve", nil, &out); err != nil {
		return err
	}
	fmt.Printf("✓ Registration %s approved as tenant %s (%s)\n", out.Registration.ID, out.Tenant.ID, out.Tenant.Name)
	return nil
}

func rejectRegistration(c *apiClient, id, reason string) error {
	var out domain.PendingRegistration
	body := map[string]string{"reason": reason}
	if err := c.do("POST", "/api/registrations/"+url.PathEscape(id)+"/reject", body, &out); err != nil {
		return err
	}
	fmt.Printf("✓ Registration %s rejected\n", out.ID)
	return nil
}

func listRegistrations(c *apiClient, args []string) error {
	fs := flag.NewFlagSet("registrations", flag.ExitOnError)
	status := fs.String("status", domain.RegistrationPending, "only registrations in this status; empty for all")
	fs.Parse(args)

	path := "/api/registrations"
	if *status != "" {
		path += "?status=" + url.QueryEscape(*status)
	}
	var regs []domain.PendingRegistration
	if err := c.do("GET", path, nil, &regs); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSTRATA\tCONTACT\tUNITS\tSUBMITTED")
	for _, r := range regs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", r.ID, r.Status, r.StrataName, r.ContactEmail, r.UnitCount, r.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func requestPath(tenantID, id string) string {
	return "/api/tenants/" + url.PathEscape(tenantID) + "/repair-requests/" + url.PathEscape(id)
}

func printUsage() {
	fmt.Print(`StrataHub operator CLI

Usage:
  stratactl <command> [options]

Commands:
  token mint           Sign a token for a user and save it (needs JWT_SECRET)
  tenant delete        Delete the token's tenant and everything it owns; resumes
                       automatically when a run stops part way
  request transition   Change a repair request's status
  request convert      Convert an approved repair request into a project
  requests list        List repair requests
  registrations list   List strata registrations (platform operators)
  registration approve Approve a registration into a new tenant
  registration reject  Reject a registration with a reason
  help                 Show this help message

Environment Variables:
  STRATAHUB_API         API endpoint (default: http://localhost:8080)
  STRATAHUB_TOKEN_FILE  Token location (default: ~/.stratahub/token)
  JWT_SECRET            Signing secret for token mint

Examples:
  stratactl token mint -tenant t1 -user u1 -role admin
  stratactl requests list -status approved
  stratactl request transition rq1 -status rejected -reason duplicate
  stratactl request convert rq1
  stratactl tenant delete -attempts 5
  stratactl token mint -tenant platform -user ops -role operator
  stratactl registration approve 3f1c
`)
}
