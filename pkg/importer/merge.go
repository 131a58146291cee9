package importer

// MergeSameBillingItems groups a pulled batch by the provider's unique-field
// tuple and folds duplicates into a single record whose update fields carry
// the sum of all inputs. Providers sometimes split one logical charge across
// several lines within the same response with no externally visible reason.
func MergeSameBillingItems(items []RawRecord, uniqueFields, updateFields []string) []RawRecord {
	if len(items) < 2 {
		return items
	}

	merged := make([]RawRecord, 0, len(items))
	index := make(map[string]int, len(items))

	for _, item := range items {
		key := item.UniqueKey(uniqueFields)
		at, seen := index[key]
		if !seen {
			index[key] = len(merged)
			// Detach the metrics map so accumulation never writes into
			// the caller's input records.
			if item.Metrics != nil {
				cloned := make(map[string]float64, len(item.Metrics))
				for k, v := range item.Metrics {
					cloned[k] = v
				}
				item.Metrics = cloned
			}
			merged = append(merged, item)
			continue
		}

		for _, field := range updateFields {
			if field == FieldCost {
				merged[at].Cost += item.Cost
				continue
			}
			if merged[at].Metrics == nil {
				merged[at].Metrics = make(map[string]float64)
			}
			merged[at].Metrics[field] += item.Metrics[field]
		}
	}

	return merged
}

// AssignRecNumbers numbers records sharing a unique-field key with a
// monotonic per-run sequence. Used by providers (Azure, Nebius) whose raw
// API legitimately emits several records for one logical key within a run:
// the sequence disambiguates upsert identity without merging them.
func AssignRecNumbers(items []RawRecord, uniqueFields []string) []RawRecord {
	counters := make(map[string]int, len(items))
	for i := range items {
		key := items[i].UniqueKey(uniqueFields)
		items[i].RecN = counters[key]
		counters[key]++
	}
	return items
}
