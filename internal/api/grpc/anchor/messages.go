package anchor

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/domain/geo"
	"github.com/oshokin/anchor-watch/internal/service/controller"
)

// ErrMalformed is returned when a message lacks a field or carries the wrong type.
var ErrMalformed = errors.New("malformed message")

// timeLayout is used for every timestamp field.
const timeLayout = time.RFC3339Nano

const (
	fieldLatitude    = "latitude"
	fieldLongitude   = "longitude"
	fieldAccuracy    = "accuracy_m"
	fieldTimestamp   = "timestamp"
	fieldUseNextFix  = "use_next_fix"
	fieldStatus      = "status"
	fieldSafeRadius  = "safe_radius_m"
	fieldPendingDrop = "pending_drop"
	fieldVerdict     = "verdict"
	fieldDistance    = "distance_m"
	fieldBearing     = "bearing_deg"
	fieldAnchor      = "anchor"
	fieldLastFix     = "last_fix"
	fieldDroppedAt   = "dropped_at"
	fieldSessionID   = "session_id"
	fieldKind        = "kind"
	fieldPrevious    = "previous"
	fieldCurrent     = "current"
	fieldAt          = "at"
)

// DropRequest is the decoded body of a DropAnchor call.
type DropRequest struct {
	// Coordinate is the anchor position for a manual drop.
	Coordinate geo.Coordinate
	// UseNextFix arms a deferred drop instead.
	UseNextFix bool
}

// EncodeDropRequest builds a DropAnchor request.
func EncodeDropRequest(req DropRequest) *structpb.Struct {
	if req.UseNextFix {
		return &structpb.Struct{Fields: map[string]*structpb.Value{
			fieldUseNextFix: structpb.NewBoolValue(true),
		}}
	}

	return encodeCoordinate(req.Coordinate)
}

// DecodeDropRequest parses a DropAnchor request.
func DecodeDropRequest(msg *structpb.Struct) (DropRequest, error) {
	fields := msg.GetFields()

	useNextFix, _, err := boolField(fields, fieldUseNextFix)
	if err != nil {
		return DropRequest{}, err
	}

	if useNextFix {
		return DropRequest{UseNextFix: true}, nil
	}

	coordinate, err := decodeCoordinate(fields)
	if err != nil {
		return DropRequest{}, err
	}

	return DropRequest{Coordinate: coordinate}, nil
}

// EncodeFix builds a SubmitFix request. A zero timestamp is omitted.
func EncodeFix(fix domain.PositionFix) *structpb.Struct {
	msg := encodeCoordinate(fix.Coordinate)
	msg.Fields[fieldAccuracy] = structpb.NewNumberValue(fix.HorizontalAccuracyMeters)

	if !fix.Timestamp.IsZero() {
		msg.Fields[fieldTimestamp] = structpb.NewStringValue(fix.Timestamp.UTC().Format(timeLayout))
	}

	return msg
}

// DecodeFix parses a SubmitFix request. Missing accuracy means unknown and a
// missing timestamp is left zero.
func DecodeFix(msg *structpb.Struct) (domain.PositionFix, error) {
	fields := msg.GetFields()

	coordinate, err := decodeCoordinate(fields)
	if err != nil {
		return domain.PositionFix{}, err
	}

	accuracy, _, err := numberField(fields, fieldAccuracy)
	if err != nil {
		return domain.PositionFix{}, err
	}

	timestamp, err := timeField(fields, fieldTimestamp)
	if err != nil {
		return domain.PositionFix{}, err
	}

	return domain.PositionFix{
		Coordinate:               coordinate,
		HorizontalAccuracyMeters: accuracy,
		Timestamp:                timestamp,
	}, nil
}

// EncodeSnapshot builds the response shared by every state-returning call.
func EncodeSnapshot(snap controller.Snapshot) *structpb.Struct {
	msg := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldStatus:      structpb.NewStringValue(snap.Status.String()),
		fieldSafeRadius:  structpb.NewNumberValue(snap.SafeRadiusMeters),
		fieldPendingDrop: structpb.NewBoolValue(snap.PendingDrop),
	}}

	if snap.Verdict != nil {
		msg.Fields[fieldVerdict] = structpb.NewStructValue(encodeVerdict(snap.Verdict))
	}

	return msg
}

// DecodeSnapshot parses a state response.
func DecodeSnapshot(msg *structpb.Struct) (controller.Snapshot, error) {
	fields := msg.GetFields()

	status, err := statusField(fields, fieldStatus)
	if err != nil {
		return controller.Snapshot{}, err
	}

	radius, _, err := numberField(fields, fieldSafeRadius)
	if err != nil {
		return controller.Snapshot{}, err
	}

	pending, _, err := boolField(fields, fieldPendingDrop)
	if err != nil {
		return controller.Snapshot{}, err
	}

	verdict, err := verdictField(fields, fieldVerdict)
	if err != nil {
		return controller.Snapshot{}, err
	}

	return controller.Snapshot{
		Status:           status,
		SafeRadiusMeters: radius,
		PendingDrop:      pending,
		Verdict:          verdict,
	}, nil
}

// EncodeEvent builds one WatchEvents stream message.
func EncodeEvent(e controller.Event) *structpb.Struct {
	msg := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldKind:     structpb.NewStringValue(e.Kind.String()),
		fieldPrevious: structpb.NewStringValue(e.Previous.String()),
		fieldCurrent:  structpb.NewStringValue(e.Current.String()),
	}}

	if !e.At.IsZero() {
		msg.Fields[fieldAt] = structpb.NewStringValue(e.At.UTC().Format(timeLayout))
	}

	if e.Verdict != nil {
		msg.Fields[fieldVerdict] = structpb.NewStructValue(encodeVerdict(e.Verdict))
	}

	return msg
}

// DecodeEvent parses one WatchEvents stream message.
func DecodeEvent(msg *structpb.Struct) (controller.Event, error) {
	fields := msg.GetFields()

	rawKind, _, err := stringField(fields, fieldKind)
	if err != nil {
		return controller.Event{}, err
	}

	kind, ok := controller.ParseEventKind(rawKind)
	if !ok {
		return controller.Event{}, fmt.Errorf("%w: unknown event kind %q", ErrMalformed, rawKind)
	}

	previous, err := statusField(fields, fieldPrevious)
	if err != nil {
		return controller.Event{}, err
	}

	current, err := statusField(fields, fieldCurrent)
	if err != nil {
		return controller.Event{}, err
	}

	at, err := timeField(fields, fieldAt)
	if err != nil {
		return controller.Event{}, err
	}

	verdict, err := verdictField(fields, fieldVerdict)
	if err != nil {
		return controller.Event{}, err
	}

	return controller.Event{
		Kind:     kind,
		Previous: previous,
		Current:  current,
		Verdict:  verdict,
		At:       at,
	}, nil
}

func encodeCoordinate(c geo.Coordinate) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldLatitude:  structpb.NewNumberValue(c.Latitude),
		fieldLongitude: structpb.NewNumberValue(c.Longitude),
	}}
}

func decodeCoordinate(fields map[string]*structpb.Value) (geo.Coordinate, error) {
	latitude, ok, err := numberField(fields, fieldLatitude)
	if err != nil {
		return geo.Coordinate{}, err
	}

	if !ok {
		return geo.Coordinate{}, fmt.Errorf("%w: %s is required", ErrMalformed, fieldLatitude)
	}

	longitude, ok, err := numberField(fields, fieldLongitude)
	if err != nil {
		return geo.Coordinate{}, err
	}

	if !ok {
		return geo.Coordinate{}, fmt.Errorf("%w: %s is required", ErrMalformed, fieldLongitude)
	}

	return geo.Coordinate{Latitude: latitude, Longitude: longitude}, nil
}

func encodeVerdict(v *domain.Verdict) *structpb.Struct {
	anchorPoint := encodeCoordinate(v.Anchor.Coordinate)
	anchorPoint.Fields[fieldSessionID] = structpb.NewStringValue(v.Anchor.SessionID.String())

	if !v.Anchor.DroppedAt.IsZero() {
		anchorPoint.Fields[fieldDroppedAt] = structpb.NewStringValue(v.Anchor.DroppedAt.UTC().Format(timeLayout))
	}

	msg := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldStatus:     structpb.NewStringValue(v.Status.String()),
		fieldDistance:   structpb.NewNumberValue(v.DistanceMeters),
		fieldBearing:    structpb.NewNumberValue(v.BearingDegrees),
		fieldSafeRadius: structpb.NewNumberValue(v.SafeRadiusMeters),
		fieldAnchor:     structpb.NewStructValue(anchorPoint),
	}}

	if v.LastFix != nil {
		msg.Fields[fieldLastFix] = structpb.NewStructValue(EncodeFix(*v.LastFix))
	}

	return msg
}

func verdictField(fields map[string]*structpb.Value, key string) (*domain.Verdict, error) {
	msg, err := structField(fields, key)
	if err != nil || msg == nil {
		return nil, err
	}

	inner := msg.GetFields()

	status, err := statusField(inner, fieldStatus)
	if err != nil {
		return nil, err
	}

	distance, _, err := numberField(inner, fieldDistance)
	if err != nil {
		return nil, err
	}

	bearing, _, err := numberField(inner, fieldBearing)
	if err != nil {
		return nil, err
	}

	radius, _, err := numberField(inner, fieldSafeRadius)
	if err != nil {
		return nil, err
	}

	anchorMsg, err := structField(inner, fieldAnchor)
	if err != nil {
		return nil, err
	}

	if anchorMsg == nil {
		return nil, fmt.Errorf("%w: %s is required in a verdict", ErrMalformed, fieldAnchor)
	}

	point, err := decodePoint(anchorMsg.GetFields())
	if err != nil {
		return nil, err
	}

	verdict := &domain.Verdict{
		Status:           status,
		DistanceMeters:   distance,
		BearingDegrees:   bearing,
		Anchor:           point,
		SafeRadiusMeters: radius,
	}

	lastFix, err := structField(inner, fieldLastFix)
	if err != nil {
		return nil, err
	}

	if lastFix != nil {
		fix, fixErr := DecodeFix(lastFix)
		if fixErr != nil {
			return nil, fixErr
		}

		verdict.LastFix = &fix
	}

	return verdict, nil
}

func decodePoint(fields map[string]*structpb.Value) (domain.Point, error) {
	coordinate, err := decodeCoordinate(fields)
	if err != nil {
		return domain.Point{}, err
	}

	droppedAt, err := timeField(fields, fieldDroppedAt)
	if err != nil {
		return domain.Point{}, err
	}

	rawID, ok, err := stringField(fields, fieldSessionID)
	if err != nil {
		return domain.Point{}, err
	}

	var sessionID uuid.UUID

	if ok {
		if sessionID, err = uuid.Parse(rawID); err != nil {
			return domain.Point{}, fmt.Errorf("%w: %s: %w", ErrMalformed, fieldSessionID, err)
		}
	}

	return domain.Point{
		Coordinate: coordinate,
		DroppedAt:  droppedAt,
		SessionID:  sessionID,
	}, nil
}

// present returns the value under key unless it is absent or null.
func present(fields map[string]*structpb.Value, key string) (*structpb.Value, bool) {
	v, ok := fields[key]
	if !ok || v == nil {
		return nil, false
	}

	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, false
	}

	return v, true
}

func numberField(fields map[string]*structpb.Value, key string) (float64, bool, error) {
	v, ok := present(fields, key)
	if !ok {
		return 0, false, nil
	}

	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false, fmt.Errorf("%w: %s must be a number", ErrMalformed, key)
	}

	return n.NumberValue, true, nil
}

func stringField(fields map[string]*structpb.Value, key string) (string, bool, error) {
	v, ok := present(fields, key)
	if !ok {
		return "", false, nil
	}

	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", false, fmt.Errorf("%w: %s must be a string", ErrMalformed, key)
	}

	return s.StringValue, true, nil
}

func boolField(fields map[string]*structpb.Value, key string) (bool, bool, error) {
	v, ok := present(fields, key)
	if !ok {
		return false, false, nil
	}

	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, false, fmt.Errorf("%w: %s must be a bool", ErrMalformed, key)
	}

	return b.BoolValue, true, nil
}

func structField(fields map[string]*structpb.Value, key string) (*structpb.Struct, error) {
	v, ok := present(fields, key)
	if !ok {
		return nil, nil
	}

	s, ok := v.GetKind().(*structpb.Value_StructValue)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an object", ErrMalformed, key)
	}

	return s.StructValue, nil
}

func timeField(fields map[string]*structpb.Value, key string) (time.Time, error) {
	raw, ok, err := stringField(fields, key)
	if err != nil || !ok {
		return time.Time{}, err
	}

	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %w", ErrMalformed, key, err)
	}

	return t, nil
}

func statusField(fields map[string]*structpb.Value, key string) (domain.Status, error) {
	raw, ok, err := stringField(fields, key)
	if err != nil {
		return domain.NoAnchor, err
	}

	if !ok {
		return domain.NoAnchor, fmt.Errorf("%w: %s is required", ErrMalformed, key)
	}

	status, ok := domain.ParseStatus(raw)
	if !ok {
		return domain.NoAnchor, fmt.Errorf("%w: unknown status %q", ErrMalformed, raw)
	}

	return status, nil
}
