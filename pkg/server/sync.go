package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pixlland/workspace-sync/pkg/assettree"
	"github.com/pixlland/workspace-sync/pkg/backend"
	"github.com/pixlland/workspace-sync/pkg/docs"
	"github.com/pixlland/workspace-sync/pkg/models"
)

// allowedActions is the envelope allow-list. Anything else is dropped
// before it can reach the engine.
var allowedActions = map[string]bool{
	"hs": true, "qf": true, "qs": true, "qu": true,
	"bf": true, "bs": true, "bu": true,
	"f": true, "s": true, "u": true, "op": true,
	"nf": true, "nt": true,
	"p": true, "ps": true, "pu": true,
}

// SyncHandler serves the document sync endpoint. Each connection gets
// its own engine stream; text frames with a known prefix are handled in
// the service, everything else is validated and pushed to the engine.
type SyncHandler struct {
	backend   backend.Backend
	docs      *docs.Manager
	tree      *assettree.Mutator
	messenger *MessengerHub
	log       zerolog.Logger
	reg       *registry
	upgrader  websocket.Upgrader
}

func NewSyncHandler(b backend.Backend, mgr *docs.Manager, tree *assettree.Mutator, messenger *MessengerHub, log zerolog.Logger) *SyncHandler {
	return &SyncHandler{
		backend:   b,
		docs:      mgr,
		tree:      tree,
		messenger: messenger,
		log:       log,
		reg:       newRegistry(),
		upgrader:  newUpgrader(),
	}
}

func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("sync upgrade failed")
		return
	}
	defer conn.Close()

	cl := h.reg.add(conn, uuid.NewString())
	defer h.reg.remove(cl)

	stream := h.backend.Listen()
	defer stream.Close()

	// engine messages flow to the socket until the stream closes
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range stream.Recv() {
			if err := cl.send(msg); err != nil {
				return
			}
		}
	}()

	ctx := r.Context()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		h.dispatch(ctx, cl, stream, payload)
	}
	stream.Close()
	<-done
}

func (h *SyncHandler) dispatch(ctx context.Context, cl *client, stream backend.Stream, payload []byte) {
	switch {
	case bytes.HasPrefix(payload, []byte("auth")):
		_ = cl.sendText(`auth{"ok":true}`)
	case bytes.HasPrefix(payload, []byte("selection")):
		h.reg.broadcast(payload, func(peer *client) bool { return peer != cl })
	case bytes.HasPrefix(payload, []byte("fs")):
		h.handleFS(ctx, payload[len("fs"):])
	default:
		h.forward(ctx, stream, payload)
	}
}

// forward validates a raw engine envelope and, for fetch/subscribe
// envelopes naming a document, ensures it exists before the engine sees
// the request.
func (h *SyncHandler) forward(ctx context.Context, stream backend.Stream, payload []byte) {
	var env struct {
		Action     string `json:"a"`
		Collection string `json:"c"`
		Doc        string `json:"d"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return
	}
	if !allowedActions[env.Action] {
		return
	}
	if (env.Action == "s" || env.Action == "f") && env.Collection != "" && env.Doc != "" {
		h.docs.Ensure(ctx, env.Collection, env.Doc)
	}
	stream.Push(payload)
}

type fsEnvelope struct {
	Op       string  `json:"op"`
	IDs      []int64 `json:"ids"`
	To       *int64  `json:"to"`
	BranchID string  `json:"branchId"`
}

func (h *SyncHandler) handleFS(ctx context.Context, payload []byte) {
	var env fsEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return
	}

	switch env.Op {
	case "move":
		patches, err := h.tree.Move(ctx, env.IDs, env.To)
		if err != nil {
			h.log.Error().Err(err).Msg("fs move failed")
			return
		}
		if len(patches) == 0 {
			return
		}
		body, err := json.Marshal(patches)
		if err != nil {
			return
		}
		h.reg.broadcast(append([]byte("fs:paths:"), body...), nil)
	case "delete":
		deleted, err := h.tree.Delete(ctx, env.IDs)
		if err != nil {
			h.log.Error().Err(err).Msg("fs delete failed")
			return
		}
		if len(deleted) == 0 {
			return
		}
		ids := make([]string, len(deleted))
		for i, id := range deleted {
			ids[i] = strconv.FormatInt(id, 10)
		}
		h.messenger.Publish("assets.delete", map[string]any{"assets": ids})
	case "duplicate":
		created, err := h.tree.Duplicate(ctx, env.IDs)
		if err != nil {
			h.log.Error().Err(err).Msg("fs duplicate failed")
			return
		}
		h.announceCreated(created)
	case "paste":
		branch, _ := models.ParseBranchID(env.BranchID)
		created, err := h.tree.Paste(ctx, env.IDs, branch, env.To)
		if err != nil {
			h.log.Error().Err(err).Msg("fs paste failed")
			return
		}
		h.announceCreated(created)
	}
}

func (h *SyncHandler) announceCreated(created []models.Asset) {
	for i := range created {
		h.messenger.Publish("asset.new", map[string]any{
			"asset": assetEvent(&created[i]),
		})
	}
}

func assetEvent(a *models.Asset) map[string]any {
	branch := a.BranchID.String()
	if a.BranchID.IsZero() {
		branch = "local"
	}
	assetType := a.Type
	if assetType == "" {
		assetType = "unknown"
	}
	event := map[string]any{
		"id":              strconv.FormatInt(a.ID, 10),
		"branchId":        branch,
		"type":            assetType,
		"source":          true,
		"status":          "complete",
		"source_asset_id": nil,
		"createdAt":       a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.SourceAssetID != nil {
		event["source_asset_id"] = strconv.FormatInt(*a.SourceAssetID, 10)
	}
	return event
}
