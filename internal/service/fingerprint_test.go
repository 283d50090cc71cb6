package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/zw-fingerprint/internal/link"
	"github.com/taoyao-code/zw-fingerprint/internal/metrics"
	"github.com/taoyao-code/zw-fingerprint/internal/protocol/zw"
	"github.com/taoyao-code/zw-fingerprint/internal/slotcache"
	pgstorage "github.com/taoyao-code/zw-fingerprint/internal/storage/pg"
)

func response(confirm byte, params ...byte) []byte {
	total := zw.FrameLength(len(params))
	f := []byte{0xEF, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, zw.PacketResponse, byte((total - 9) >> 8), byte(total - 9), confirm}
	f = append(f, params...)
	var sum uint16
	for _, b := range f[6:] {
		sum += uint16(b)
	}
	return append(f, byte(sum>>8), byte(sum))
}

// fakeLink 按预设应答返回，不经过真实链路
type fakeLink struct {
	replies [][]byte
	err     error
	sent    []*zw.Encoded
}

func (f *fakeLink) Exchange(_ context.Context, req *zw.Encoded) (*link.Exchange, error) {
	f.sent = append(f.sent, req)
	ex := &link.Exchange{ID: uuid.New(), Request: req}
	codec := zw.NewCodec(zw.ZW20, zw.BroadcastAddress)
	for _, raw := range f.replies {
		resp, err := codec.ParseResponse(raw, len(raw))
		ex.Replies = append(ex.Replies, link.Reply{Raw: raw, Response: resp, Err: err})
	}
	return ex, f.err
}

type fakeJournal struct {
	recs []*pgstorage.FrameRecord
	err  error
}

func (j *fakeJournal) InsertFrame(_ context.Context, rec *pgstorage.FrameRecord) error {
	if j.err != nil {
		return j.err
	}
	j.recs = append(j.recs, rec)
	return nil
}

func newService(l Exchanger, j Journal) (*Fingerprint, *metrics.AppMetrics) {
	m := metrics.NewAppMetrics(metrics.NewRegistry())
	svc := NewFingerprint(zw.NewCodec(zw.ZW20, zw.BroadcastAddress), Deps{Link: l, Journal: j, Metrics: m})
	return svc, m
}

func TestBuild_Metrics(t *testing.T) {
	svc, m := newService(nil, nil)

	_, err := svc.Build(zw.Handshake{})
	require.NoError(t, err)
	_, err = svc.Build(zw.DeleteChar{ID: 100, Count: 1})
	assert.ErrorIs(t, err, zw.ErrParameterOutOfRange)
	enc, err := svc.Build(zw.ControlLED{Function: zw.LEDOn, StartColor: 0xF1})
	require.NoError(t, err)
	require.Len(t, enc.Warnings, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesBuilt.WithLabelValues("handshake", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesBuilt.WithLabelValues("delete_char", "param_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FrameWarnings.WithLabelValues("color_bits_truncated")))
}

func TestValidate_Metrics(t *testing.T) {
	svc, m := newService(nil, nil)
	_, err := svc.Validate(response(0x00))
	require.NoError(t, err)

	bad := response(0x00)
	bad[len(bad)-1] ^= 0xFF
	_, err = svc.Validate(bad)
	assert.ErrorIs(t, err, zw.ErrChecksumMismatch)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesValidated.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesValidated.WithLabelValues("checksum_mismatch")))
}

func TestParseIndexTable_UpdatesSlots(t *testing.T) {
	svc, m := newService(nil, nil)
	ctx := context.Background()

	_, err := svc.Slots(ctx)
	assert.ErrorIs(t, err, slotcache.ErrNotFound)

	bitmap := make([]byte, 32)
	bitmap[0] = 0x87
	bitmap[12] = 0x08
	ids, err := svc.ParseIndexTable(ctx, response(0x00, bitmap...))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 7, 99}, ids)

	snap, err := svc.Slots(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids, snap.Slots)
	assert.Equal(t, "FFFFFFFF", snap.Address)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.OccupiedSlots))
	next, ok := snap.NextFree()
	assert.True(t, ok)
	assert.Equal(t, 3, next)
}

func TestSend_LinkDisabled(t *testing.T) {
	svc, _ := newService(nil, nil)
	assert.False(t, svc.LinkEnabled())
	_, err := svc.Send(context.Background(), zw.Handshake{})
	assert.ErrorIs(t, err, ErrLinkDisabled)
}

func TestSend_ReadIndexTable(t *testing.T) {
	bitmap := make([]byte, 32)
	bitmap[0] = 0x07
	l := &fakeLink{replies: [][]byte{response(0x00, bitmap...)}}
	j := &fakeJournal{}
	svc, _ := newService(l, j)

	res, err := svc.Send(context.Background(), &zw.ReadIndexTable{Page: 0})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, res.Slots)
	require.Len(t, l.sent, 1)
	assert.Equal(t, zw.OpReadIndexTable, l.sent[0].Opcode)

	require.Len(t, j.recs, 2)
	assert.Equal(t, pgstorage.DirectionDown, j.recs[0].Direction)
	assert.Equal(t, zw.OpReadIndexTable, j.recs[0].Code)
	assert.Equal(t, pgstorage.DirectionUp, j.recs[1].Direction)
	assert.Equal(t, zw.PacketResponse, j.recs[1].PacketType)
	assert.Equal(t, j.recs[0].ExchangeID, j.recs[1].ExchangeID)
}

func TestSend_OtherPageDoesNotTouchSlots(t *testing.T) {
	l := &fakeLink{replies: [][]byte{response(0x00, make([]byte, 32)...)}}
	svc, _ := newService(l, nil)
	res, err := svc.Send(context.Background(), zw.ReadIndexTable{Page: 1})
	require.NoError(t, err)
	assert.Nil(t, res.Slots)
	_, err = svc.Slots(context.Background())
	assert.ErrorIs(t, err, slotcache.ErrNotFound)
}

func TestSend_BuildErrorNotSent(t *testing.T) {
	l := &fakeLink{}
	svc, _ := newService(l, nil)
	_, err := svc.Send(context.Background(), zw.AutoEnroll{ID: 1, EnrollTimes: 9})
	assert.ErrorIs(t, err, zw.ErrParameterOutOfRange)
	assert.Empty(t, l.sent)
}

func TestSend_LinkErrorJournalsInvalidReply(t *testing.T) {
	bad := response(0x00)
	bad[2] = 0x00 // 地址不符
	l := &fakeLink{replies: [][]byte{bad}, err: zw.ErrAddressMismatch}
	j := &fakeJournal{}
	svc, _ := newService(l, j)

	res, err := svc.Send(context.Background(), zw.Handshake{})
	assert.ErrorIs(t, err, zw.ErrAddressMismatch)
	require.NotNil(t, res)
	require.Len(t, j.recs, 2)
	assert.False(t, j.recs[1].Valid)
	assert.Equal(t, "address_mismatch", j.recs[1].ErrorKind)
}

func TestSend_JournalFailureIgnored(t *testing.T) {
	l := &fakeLink{replies: [][]byte{response(0x00)}}
	svc, _ := newService(l, &fakeJournal{err: errors.New("db down")})
	res, err := svc.Send(context.Background(), zw.Handshake{})
	require.NoError(t, err)
	assert.True(t, res.Exchange.Final().Confirm.OK())
}
