package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"golang.org/x/net/html"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// serveCheckTarget reports whether the current page is the target, compared
// on decoded, case-folded paths.
func (a *app) serveCheckTarget() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		current := r.URL.Query().Get("current")
		target := r.URL.Query().Get("target")
		if target == "" {
			target = a.cfg.targetURL
		}

		if !a.cfg.isSafeURL(current) || !a.cfg.isSafeURL(target) {
			writeJSONError(w, http.StatusBadRequest, errInvalidURL.Error())
			return
		}

		currentPath := normalizedPath(current)
		targetPath := normalizedPath(target)

		// The fetched title is best-effort garnish; a failed fetch just
		// leaves it empty.
		title := ""
		if markup, err := a.wiki.Fetch(r.Context(), current); err == nil {
			if doc, err := html.Parse(strings.NewReader(markup)); err == nil {
				walk(doc, func(n *html.Node) bool {
					if title != "" {
						return false
					}
					if n.Type == html.ElementNode && n.Data == "title" {
						title = textContent(n)
						return false
					}
					return true
				})
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"is_target":    currentPath == targetPath,
			"current_path": currentPath,
			"target_path":  targetPath,
			"title":        title,
		})
	}
}

func (a *app) serveRandomPage() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		pageURL, err := a.pager.RandomPageURL(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, "failed to fetch a random page")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"url": pageURL})
	}
}

func (a *app) serveDifficultyPage() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		tier := difficulty(r.URL.Query().Get("difficulty"))
		if tier == "" {
			tier = difficultyEasy
		}
		if !tier.valid() {
			writeJSONError(w, http.StatusBadRequest, "invalid difficulty; use easy, medium, or hard")
			return
		}

		pageURL, err := a.refs.Random(tier)
		switch {
		case errors.Is(err, errDifficultyMissing), errors.Is(err, errDifficultyEmpty):
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		case errors.Is(err, errInvalidURL):
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			writeJSONError(w, http.StatusInternalServerError, "failed to read difficulty data")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"url": pageURL})
	}
}

func (a *app) serveSearch() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		query := strings.TrimSpace(r.URL.Query().Get("query"))

		// Single characters would flood the relay with junk suggestions.
		if len([]rune(query)) < 2 {
			writeJSON(w, http.StatusOK, map[string]any{"suggestions": []Suggestion{}})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		suggestions, err := a.wiki.Search(ctx, query)
		if err != nil {
			logf(a.cfg, "API: search %q failed: %v", query, err)
			writeJSON(w, http.StatusOK, map[string]any{"suggestions": []Suggestion{}})
			return
		}
		if suggestions == nil {
			suggestions = []Suggestion{}
		}

		writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
	}
}

func (a *app) servePageLinks() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		pageURL := r.URL.Query().Get("url")
		if !a.cfg.isSafeURL(pageURL) {
			writeJSONError(w, http.StatusBadRequest, errInvalidURL.Error())
			return
		}

		links, err := a.wiki.ExtractLinks(r.Context(), pageURL)
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, "failed to extract links")
			return
		}
		if links == nil {
			links = []string{}
		}

		writeJSON(w, http.StatusOK, map[string]any{"links": links})
	}
}

// serveProxy fetches a validated page, sanitizes it, and in guessing mode
// additionally redacts the title and records it for answer checking.
func (a *app) serveProxy() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		pageURL := r.URL.Query().Get("url")
		mode := gameMode(r.URL.Query().Get("mode"))
		roomID := r.URL.Query().Get("room_id")

		if mode == "" {
			mode = modeNavigation
		}
		if !a.cfg.isSafeURL(pageURL) {
			http.Error(w, errInvalidURL.Error(), http.StatusBadRequest)
			return
		}

		markup, err := a.wiki.Fetch(r.Context(), pageURL)
		if err != nil {
			logf(a.cfg, "PROXY: fetch %s failed: %v", pageURL, err)
			http.Error(w, "failed to fetch page", http.StatusBadGateway)
			return
		}

		var rendered string
		if mode == modeGuessing {
			rendered, err = a.redactPage(markup)
			if err == nil && roomID != "" {
				a.recordPageTitle(roomID, pageURL)
			}
		} else {
			rendered, err = a.sanitizePage(markup)
		}
		if err != nil {
			http.Error(w, "failed to render page", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(a.cfg, w)
		_, _ = w.Write([]byte(rendered))
	}
}

// serveRoomQR renders a QR code pointing at the multiplayer page with the
// room preselected, for passing a phone around the table.
func (a *app) serveRoomQR() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if roomID == "" || a.reg.roomByID(roomID) == nil {
			http.Error(w, errRoomNotFound.Error(), http.StatusNotFound)
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		joinURL := scheme + "://" + r.Host + a.cfg.prefix + "/multiplayer?room=" + roomID

		const qrSize = 320
		png, err := qrcode.Encode(joinURL, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}
