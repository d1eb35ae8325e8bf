package content

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// PassthroughMetaKeys are copied verbatim from a source document to its
// translations at finalize time: images, pricing, inventory, and physical
// attributes are language-independent.
var PassthroughMetaKeys = []string{
	"thumbnail_id",
	"image_gallery",
	"price",
	"regular_price",
	"sale_price",
	"sku",
	"stock",
	"stock_status",
	"manage_stock",
	"weight",
	"length",
	"width",
	"height",
	"product_attributes",
	"upsell_ids",
	"crosssell_ids",
	"purchase_note",
	"default_attributes",
	"virtual",
	"downloadable",
	"product_version",
}

// EnsureGroupID returns the translation group ID of a document, stamping a
// new group onto an original document that has none yet. A document that is
// itself a translation but is missing its group is left untouched.
func EnsureGroupID(ctx context.Context, store Store, docID, siteLanguage string) (string, error) {
	groupID, err := store.GetMeta(ctx, docID, MetaGroupID)
	if err != nil {
		return "", err
	}
	if groupID != "" {
		return groupID, nil
	}

	originalID, err := store.GetMeta(ctx, docID, MetaOriginalID)
	if err != nil {
		return "", err
	}
	if originalID != "" {
		return "", fmt.Errorf("document %s is a translation without a group", docID)
	}

	groupID = uuid.NewString()
	if err := store.SetMeta(ctx, docID, MetaGroupID, groupID); err != nil {
		return "", err
	}
	if err := store.SetMeta(ctx, docID, MetaIsOriginal, "1"); err != nil {
		return "", err
	}

	lang, err := store.GetMeta(ctx, docID, MetaLanguage)
	if err != nil {
		return "", err
	}
	if lang == "" {
		if err := store.SetMeta(ctx, docID, MetaLanguage, siteLanguage); err != nil {
			return "", err
		}
	}
	return groupID, nil
}

// Translations lists the documents sharing a translation group with docID,
// keyed by language code. The document itself is included under its own
// language.
func Translations(ctx context.Context, store Store, docID string) (map[string]string, error) {
	groupID, err := store.GetMeta(ctx, docID, MetaGroupID)
	if err != nil {
		return nil, err
	}
	ret := make(map[string]string)
	if groupID == "" {
		return ret, nil
	}

	ids, err := store.ListIDsByMeta(ctx, MetaGroupID, groupID)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		lang, err := store.GetMeta(ctx, id, MetaLanguage)
		if err != nil {
			return nil, err
		}
		if lang != "" {
			ret[lang] = id
		}
	}
	return ret, nil
}

// CopyPassthroughMeta copies the fixed allow-list of untranslated fields
// from a source document to a translation. Unset keys are skipped.
func CopyPassthroughMeta(ctx context.Context, store Store, sourceID, targetID string) error {
	for _, key := range PassthroughMetaKeys {
		val, err := store.GetMeta(ctx, sourceID, key)
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
		if val == "" {
			continue
		}
		if err := store.SetMeta(ctx, targetID, key, val); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
	}
	return nil
}
