package api

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/niranworks/compass/pkg/models"
	"github.com/niranworks/compass/pkg/search"
)

// parseResourceIDFromURL parses a URL path with the format
// "/api/v1/{apiPath}/{resourceID}" and returns the resource ID.
func parseResourceIDFromURL(url, apiPath string) (string, error) {
	url = strings.TrimPrefix(url, fmt.Sprintf("/api/v1/%s", apiPath))

	// Remove empty entries and validate path.
	urlPath := strings.Split(url, "/")
	var resultPath []string
	for _, v := range urlPath {
		if v != "" {
			resultPath = append(resultPath, v)
		}
	}
	resultPathLen := len(resultPath)
	// Only a single resource ID may follow the API path.
	if resultPathLen > 1 {
		return "", fmt.Errorf("invalid URL path")
	}
	if resultPathLen == 0 {
		return "", fmt.Errorf("no resource ID set in URL path")
	}

	return resultPath[0], nil
}

// parseCollectionFromURL parses a URL path with the format
// "/api/v1/collections/{collection}/documents" and returns the
// collection name.
func parseCollectionFromURL(url string) (string, error) {
	url = strings.TrimPrefix(url, "/api/v1/collections/")

	urlPath := strings.Split(url, "/")
	var resultPath []string
	for _, v := range urlPath {
		if v != "" {
			resultPath = append(resultPath, v)
		}
	}
	if len(resultPath) != 2 || resultPath[1] != "documents" {
		return "", fmt.Errorf("invalid URL path")
	}

	return resultPath[0], nil
}

// compareSearchAndDatabaseDocument compares a document stored in the
// search index with its database row to determine any inconsistencies,
// which are returned back as a (multierror) error.
func compareSearchAndDatabaseDocument(
	searchDoc *search.Document,
	dbDoc *models.Document,
) error {
	var result *multierror.Error

	if searchDoc.UUID != dbDoc.UUID.String() {
		result = multierror.Append(result,
			fmt.Errorf(
				"uuid not equal, search=%v, db=%v",
				searchDoc.UUID, dbDoc.UUID),
		)
	}

	if searchDoc.Collection != dbDoc.Collection {
		result = multierror.Append(result,
			fmt.Errorf(
				"collection not equal, search=%v, db=%v",
				searchDoc.Collection, dbDoc.Collection),
		)
	}

	// The sink only carries the shard key for overwrite-by-key objects,
	// so an empty search-side key is not an inconsistency.
	if searchDoc.ShardKey != "" && searchDoc.ShardKey != dbDoc.ShardKey {
		result = multierror.Append(result,
			fmt.Errorf(
				"shard key not equal, search=%v, db=%v",
				searchDoc.ShardKey, dbDoc.ShardKey),
		)
	}

	for name, dbVal := range dbDoc.Fields {
		switch want := dbVal.(type) {
		case string:
			got, err := getStringValue(searchDoc.Fields, name)
			if err != nil {
				result = multierror.Append(result,
					fmt.Errorf("error getting field %q value: %w", name, err))
			} else if got != want {
				result = multierror.Append(result,
					fmt.Errorf(
						"field %q not equal, search=%v, db=%v", name, got, want))
			}
		case bool:
			got, err := getBooleanValue(searchDoc.Fields, name)
			if err != nil {
				result = multierror.Append(result,
					fmt.Errorf("error getting field %q value: %w", name, err))
			} else if got != want {
				result = multierror.Append(result,
					fmt.Errorf(
						"field %q not equal, search=%v, db=%v", name, got, want))
			}
		case float64:
			got, err := getFloat64Value(searchDoc.Fields, name)
			if err != nil {
				result = multierror.Append(result,
					fmt.Errorf("error getting field %q value: %w", name, err))
			} else if got != want {
				result = multierror.Append(result,
					fmt.Errorf(
						"field %q not equal, search=%v, db=%v", name, got, want))
			}
		default:
			// Structured values compare by their display form. Both sides
			// round-tripped through JSON so the representations line up.
			got := fmt.Sprintf("%v", searchDoc.Fields[name])
			if got != fmt.Sprintf("%v", want) {
				result = multierror.Append(result,
					fmt.Errorf(
						"field %q not equal, search=%v, db=%v", name, got, want))
			}
		}
	}

	return result.ErrorOrNil()
}

func getStringValue(in map[string]interface{}, key string) (string, error) {
	var result string

	if v, ok := in[key]; ok {
		if vv, ok := v.(string); ok {
			return vv, nil
		}
		return "", fmt.Errorf("invalid type: value is not a string, type: %T", v)
	}

	return result, nil
}

func getBooleanValue(in map[string]interface{}, key string) (bool, error) {
	var result bool

	if v, ok := in[key]; ok {
		if vv, ok := v.(bool); ok {
			return vv, nil
		}
		return false, fmt.Errorf("invalid type: value is not a boolean, type: %T", v)
	}

	return result, nil
}

func getFloat64Value(in map[string]interface{}, key string) (float64, error) {
	var result float64

	if v, ok := in[key]; ok {
		switch vv := v.(type) {
		case float64:
			return vv, nil
		case int:
			// Some backends hand numbers back as ints.
			return float64(vv), nil
		case int64:
			return float64(vv), nil
		default:
			return 0, fmt.Errorf("invalid type: value is not a number, type: %T", v)
		}
	}

	return result, nil
}
