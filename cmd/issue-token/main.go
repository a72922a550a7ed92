// Command issue-token mints a development JWT signed with JWT_SECRET.
//
//	issue-token -sub user-42
//	issue-token -sub ops -role admin
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/service"
)

func main() {
	subject := flag.String("sub", "", "Respondent or admin id (required)")
	role := flag.String("role", model.RoleRespondent, "Token role: respondent or admin")
	perms := flag.String("perms", "", "Comma-separated permissions (admin defaults to all)")
	ttl := flag.Duration("ttl", 0, "Token lifetime, e.g. 2h (defaults to JWT_EXPIRY_HOURS)")
	flag.Parse()

	permissions, err := resolvePermissions(*role, *perms)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := config.Load()
	token, err := service.NewAuthService(cfg).IssueToken(*subject, *role, permissions, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

// resolvePermissions validates the role and the requested permission list.
func resolvePermissions(role, raw string) ([]string, error) {
	switch role {
	case model.RoleRespondent, model.RoleAdmin:
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
	if raw == "" {
		if role == model.RoleAdmin {
			return model.PermissionStrings(), nil
		}
		return nil, nil
	}

	known := make(map[string]bool, len(model.AllPermissions))
	for _, p := range model.AllPermissions {
		known[string(p)] = true
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !known[p] {
			return nil, fmt.Errorf("unknown permission %q", p)
		}
		out = append(out, p)
	}
	return out, nil
}
