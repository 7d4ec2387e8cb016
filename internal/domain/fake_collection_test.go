package domain

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// fakeCollection is an in-memory stand-in for the handful of collection
// methods the repositories use. Filters support equality, $in, $lte and $ne.
type fakeCollection struct {
	t      *testing.T
	docs   []bson.M
	unique [][]string

	findErr   error
	updateErr error
	lastFind  *options.FindOptions
}

func newFakeCollection(t *testing.T, unique ...[]string) *fakeCollection {
	t.Helper()
	return &fakeCollection{t: t, unique: unique}
}

func (f *fakeCollection) InsertOne(_ context.Context, document interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	doc := toDoc(f.t, document)
	if _, ok := doc["_id"]; !ok {
		doc["_id"] = primitive.NewObjectID()
	}
	if f.violatesUnique(doc) {
		return nil, duplicateKeyError()
	}

	f.docs = append(f.docs, doc)
	return &mongo.InsertOneResult{InsertedID: doc["_id"]}, nil
}

func (f *fakeCollection) FindOne(_ context.Context, filter interface{}, _ ...*options.FindOneOptions) *mongo.SingleResult {
	filterDoc := toDoc(f.t, filter)
	for _, doc := range f.docs {
		if matches(doc, filterDoc) {
			return mongo.NewSingleResultFromDocument(doc, nil, nil)
		}
	}

	return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
}

func (f *fakeCollection) Find(_ context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}

	filterDoc := toDoc(f.t, filter)
	matched := make([]bson.M, 0)
	for _, doc := range f.docs {
		if matches(doc, filterDoc) {
			matched = append(matched, doc)
		}
	}

	var opt *options.FindOptions
	if len(opts) > 0 && opts[0] != nil {
		opt = opts[0]
	}
	f.lastFind = opt

	if opt != nil && opt.Sort != nil {
		sortDoc, ok := opt.Sort.(bson.D)
		if !ok {
			return nil, fmt.Errorf("unexpected sort type %T", opt.Sort)
		}
		sort.SliceStable(matched, func(i, j int) bool {
			for _, elem := range sortDoc {
				c := compareValues(matched[i][elem.Key], matched[j][elem.Key])
				if c == 0 {
					continue
				}
				if elem.Value == -1 {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if opt != nil && opt.Limit != nil && *opt.Limit > 0 && int64(len(matched)) > *opt.Limit {
		matched = matched[:*opt.Limit]
	}

	docs := make([]interface{}, 0, len(matched))
	for _, doc := range matched {
		docs = append(docs, doc)
	}

	return mongo.NewCursorFromDocuments(docs, nil, nil)
}

func (f *fakeCollection) UpdateOne(_ context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}

	filterDoc := toDoc(f.t, filter)
	updateDoc, ok := update.(bson.M)
	if !ok {
		return nil, fmt.Errorf("unexpected update type %T", update)
	}
	setDoc := toDoc(f.t, updateDoc["$set"])
	setOnInsertDoc := toDoc(f.t, updateDoc["$setOnInsert"])

	for _, doc := range f.docs {
		if matches(doc, filterDoc) {
			for k, v := range setDoc {
				doc[k] = v
			}
			return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
		}
	}

	upsert := len(opts) > 0 && opts[0] != nil && opts[0].Upsert != nil && *opts[0].Upsert
	if !upsert {
		return &mongo.UpdateResult{}, nil
	}

	doc := bson.M{"_id": primitive.NewObjectID()}
	for k, v := range filterDoc {
		if _, isOperator := operatorDoc(v); !isOperator {
			doc[k] = v
		}
	}
	for k, v := range setOnInsertDoc {
		doc[k] = v
	}
	for k, v := range setDoc {
		doc[k] = v
	}
	if f.violatesUnique(doc) {
		return nil, duplicateKeyError()
	}

	f.docs = append(f.docs, doc)
	return &mongo.UpdateResult{UpsertedCount: 1, UpsertedID: doc["_id"]}, nil
}

func (f *fakeCollection) docWhere(t *testing.T, key string, value interface{}) bson.M {
	t.Helper()

	filter := toDoc(t, bson.M{key: value})
	for _, doc := range f.docs {
		if matches(doc, filter) {
			return doc
		}
	}

	t.Fatalf("no document stored with %s=%v", key, value)
	return nil
}

func (f *fakeCollection) violatesUnique(doc bson.M) bool {
	for _, fields := range f.unique {
		for _, existing := range f.docs {
			same := true
			for _, field := range fields {
				if compareValues(existing[field], doc[field]) != 0 {
					same = false
					break
				}
			}
			if same {
				return true
			}
		}
	}
	return false
}

func duplicateKeyError() error {
	return mongo.WriteException{
		WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key error"}},
	}
}

// toDoc round-trips values through BSON so stored and filter values share
// representations (primitive.DateTime, int64, primitive.A).
func toDoc(t *testing.T, value interface{}) bson.M {
	t.Helper()

	if value == nil {
		return bson.M{}
	}

	raw, err := bson.Marshal(value)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	return out
}

func matches(doc, filter bson.M) bool {
	for key, want := range filter {
		got, present := doc[key]

		ops, isOperator := operatorDoc(want)
		if !isOperator {
			if !present || compareValues(got, want) != 0 {
				return false
			}
			continue
		}

		for op, arg := range ops {
			switch op {
			case "$in":
				if !present || !containsValue(arg, got) {
					return false
				}
			case "$lte":
				if !present || compareValues(got, arg) > 0 {
					return false
				}
			case "$ne":
				if present && compareValues(got, arg) == 0 {
					return false
				}
			default:
				panic("unsupported operator " + op)
			}
		}
	}
	return true
}

func operatorDoc(v interface{}) (bson.M, bool) {
	var out bson.M
	switch doc := v.(type) {
	case bson.M:
		out = doc
	case bson.D:
		out = doc.Map()
	default:
		return nil, false
	}
	for key := range out {
		if len(key) == 0 || key[0] != '$' {
			return nil, false
		}
	}
	return out, len(out) > 0
}

func containsValue(list interface{}, value interface{}) bool {
	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if compareValues(rv.Index(i).Interface(), value) == 0 {
			return true
		}
	}
	return false
}

func compareValues(a, b interface{}) int {
	a, b = normalizeValue(a), normalizeValue(b)

	switch av := a.(type) {
	case int64:
		if bv, ok := b.(int64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			default:
				return 0
			}
		}
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			default:
				return 0
			}
		}
	}

	if reflect.DeepEqual(a, b) {
		return 0
	}
	if a == nil {
		return -1
	}
	return 1
}

func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return int64(primitive.NewDateTimeFromTime(val))
	case primitive.DateTime:
		return int64(val)
	case int:
		return int64(val)
	case int32:
		return int64(val)
	default:
		return v
	}
}
