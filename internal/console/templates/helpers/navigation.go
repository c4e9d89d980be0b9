package helpers

import (
	"context"
	"strings"

	"finitefield.org/crm-console/internal/console/httpserver/middleware"
	"finitefield.org/crm-console/internal/console/rbac"
)

// NavItem is one sidebar entry.
type NavItem struct {
	Key        string
	Label      string
	Href       string
	Active     bool
	Capability rbac.Capability
}

// NavEntry describes a protected view for navigation.
type NavEntry struct {
	Key        string
	Path       string
	LabelKey   string
	Capability rbac.Capability
}

// Navigation lists the views in sidebar order.
var Navigation = []NavEntry{
	{Key: "dashboard", Path: "/", LabelKey: "nav.dashboard", Capability: rbac.CapDashboardView},
	{Key: "contacts", Path: "/contacts", LabelKey: "nav.contacts", Capability: rbac.CapContactsView},
	{Key: "companies", Path: "/companies", LabelKey: "nav.companies", Capability: rbac.CapCompaniesView},
	{Key: "kanban", Path: "/kanban", LabelKey: "nav.kanban", Capability: rbac.CapKanbanView},
	{Key: "messages", Path: "/messages", LabelKey: "nav.messages", Capability: rbac.CapMessagesView},
	{Key: "settings", Path: "/settings", LabelKey: "nav.settings", Capability: rbac.CapSettingsManage},
}

// NavItems builds the sidebar for the current request, hiding entries the user cannot open.
func NavItems(ctx context.Context, translate func(string) string) []NavItem {
	base := BasePath(ctx)
	items := make([]NavItem, 0, len(Navigation))
	for _, entry := range Navigation {
		if !HasCapability(ctx, entry.Capability) {
			continue
		}
		href := JoinBase(base, entry.Path)
		items = append(items, NavItem{
			Key:        entry.Key,
			Label:      translate(entry.LabelKey),
			Href:       href,
			Active:     NavActive(ctx, href, entry.Path != "/"),
			Capability: entry.Capability,
		})
	}
	return items
}

// RequestPath returns the current request URL path for template helpers.
func RequestPath(ctx context.Context) string {
	return normalizeRoute(middleware.RoutesFromContext(ctx).Path)
}

// BasePath returns the configured base path.
func BasePath(ctx context.Context) string {
	return normalizeRoute(middleware.RoutesFromContext(ctx).Base)
}

// JoinBase prefixes p with base.
func JoinBase(base, p string) string {
	base = normalizeRoute(base)
	if base == "/" {
		return normalizeRoute(p)
	}
	if normalizeRoute(p) == "/" {
		return base
	}
	return normalizeRoute(base + "/" + p)
}

// NavActive reports whether the current request should highlight the menu item.
func NavActive(ctx context.Context, pattern string, prefix bool) bool {
	current := RequestPath(ctx)
	target := normalizeRoute(pattern)

	if prefix {
		if target == "/" {
			return current == "/"
		}
		if current == target {
			return true
		}
		return strings.HasPrefix(current, target+"/")
	}

	return current == target
}

func normalizeRoute(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return "/"
		}
	}
	return path
}
