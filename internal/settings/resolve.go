package settings

import (
	"strings"

	"github.com/evallife/polychat/internal/chaterr"
	"github.com/evallife/polychat/internal/provider"
	"github.com/evallife/polychat/internal/types"
)

// ResolveActiveModel picks the model a send should use: the conversation's
// own model, else the default. It returns the model together with the
// credential for its provider. conv may be nil.
func ResolveActiveModel(conv *types.Conversation, st types.Settings, creds types.Credentials) (types.ModelRef, string, error) {
	id := st.DefaultModelID
	if conv != nil && conv.ModelID != "" {
		id = conv.ModelID
	}
	if id == "" {
		return types.ModelRef{}, "", chaterr.New(chaterr.KindModelNotFound, "no model selected")
	}

	model, ok := findModel(st.Models, id)
	if !ok {
		return types.ModelRef{}, "", &chaterr.Error{Kind: chaterr.KindModelNotFound, Message: "model " + id + " is not in the catalog"}
	}
	if _, err := provider.Lookup(model.Provider); err != nil {
		return types.ModelRef{}, "", err
	}
	if (model.IsCustom || model.Provider == types.ProviderOpenAICompatible) && strings.TrimSpace(model.BaseURL) == "" {
		return types.ModelRef{}, "", &chaterr.Error{Kind: chaterr.KindModelNotFound, Provider: string(model.Provider), Message: "custom model " + id + " has no base URL"}
	}

	cred := strings.TrimSpace(creds[model.Provider])
	if cred == "" {
		return types.ModelRef{}, "", &chaterr.Error{Kind: chaterr.KindMissingCredential, Provider: string(model.Provider), Message: "no credential configured"}
	}
	return model, cred, nil
}

func findModel(models []types.ModelRef, id string) (types.ModelRef, bool) {
	for _, m := range models {
		if m.ID == id {
			return m, true
		}
	}
	return types.ModelRef{}, false
}
