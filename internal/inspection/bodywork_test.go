package inspection

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoerp-inspection/backend/internal/apperror"
	"github.com/autoerp-inspection/backend/internal/capture"
	"github.com/autoerp-inspection/backend/internal/models"
	"github.com/autoerp-inspection/backend/internal/photo"
)

var fullRect = capture.Rect{Left: 0, Top: 0, Width: 800, Height: 350}

func TestBodywork_EmptyPointNeverReachesCreate(t *testing.T) {
	erp := newFakeERP()
	s, _, notices := loadBodywork(t, erp)
	ctx := context.Background()

	first, err := s.Click(100, 100, fullRect)
	require.NoError(t, err)
	_, err = s.UpdatePoint(first.Point.LocalID, capture.PointPatch{DamageTypeID: models.Ptr(int64(1))})
	require.NoError(t, err)

	second, err := s.Click(400, 200, fullRect)
	require.NoError(t, err)
	require.True(t, second.Created)

	require.NoError(t, s.NextView(ctx))

	calls := erp.mutations()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, "/orders/bodywork-details/", calls[0].Path)

	var sent []map[string]any
	require.NoError(t, json.Unmarshal(calls[0].Body, &sent))
	require.Len(t, sent, 1)
	assert.Equal(t, float64(100), sent[0]["x"])
	assert.Equal(t, float64(1), sent[0]["detail_type_id"])
	assert.Equal(t, "front", sent[0]["view"])
	assert.Equal(t, true, sent[0]["is_free_selection"])

	assert.Equal(t, 1, s.nav.Index())
	front := s.boards[0].Points()
	require.Len(t, front, 1)
	require.NotNil(t, front[0].ServerID)
	assert.Equal(t, int64(101), *front[0].ServerID)
	assert.Len(t, s.baseline[models.ViewFront], 1)

	require.Len(t, notices.notices, 1)
	assert.Equal(t, NoticeSuccess, notices.notices[0].Level)
}

func TestBodywork_EditedPointIsPatched(t *testing.T) {
	erp := newFakeERP()
	erp.points = `[
		{"detail_id": 42, "view": "front", "x": 10, "y": 20, "detail_type": {"detail_type_id": 1}, "detail_notes": "old"},
		{"detail_id": 43, "view": "front", "x": 300, "y": 200, "detail_type": {"detail_type_id": 2}, "detail_notes": "keep"}
	]`
	s, _, _ := loadBodywork(t, erp)

	_, err := s.UpdatePoint(localIDFor(t, s, 42), capture.PointPatch{Notes: models.Ptr("scratched bumper")})
	require.NoError(t, err)
	require.NoError(t, s.SaveStep(context.Background()))

	calls := erp.mutations()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPatch, calls[0].Method)
	assert.Equal(t, "/orders/bodywork-details/42/", calls[0].Path)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(calls[0].Body, &sent))
	assert.Equal(t, "scratched bumper", sent["detail_notes"])
}

func TestBodywork_RemovedPointIsDeletedOnce(t *testing.T) {
	erp := newFakeERP()
	erp.points = `[
		{"detail_id": 7, "view": "front", "x": 10, "y": 20, "detail_type": {"detail_type_id": 1}, "detail_notes": ""},
		{"detail_id": 8, "view": "front", "x": 300, "y": 200, "detail_type": {"detail_type_id": 2}, "detail_notes": "dent"}
	]`
	s, _, _ := loadBodywork(t, erp)
	ctx := context.Background()

	require.NoError(t, s.RemovePoint(ctx, localIDFor(t, s, 7)))
	require.NoError(t, s.SaveStep(ctx))

	calls := erp.mutations()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodDelete, calls[0].Method)
	assert.Equal(t, "/orders/bodywork-details/7", calls[0].Path)
	assert.Equal(t, 1, s.board().Len())
}

func TestBodywork_FailedSaveBlocksNavigation(t *testing.T) {
	erp := newFakeERP()
	s, _, _ := loadBodywork(t, erp)
	ctx := context.Background()

	res, err := s.Click(50, 50, fullRect)
	require.NoError(t, err)
	_, err = s.UpdatePoint(res.Point.LocalID, capture.PointPatch{Notes: models.Ptr("chip")})
	require.NoError(t, err)

	erp.setFailMutations(true)
	err = s.NextView(ctx)

	var netErr *apperror.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, "database unavailable", netErr.Detail)
	assert.Equal(t, 0, s.nav.Index())
	assert.Empty(t, s.baseline[models.ViewFront])

	points := s.board().Points()
	require.Len(t, points, 1)
	assert.Nil(t, points[0].ServerID)
	assert.Equal(t, "chip", points[0].Notes)

	erp.setFailMutations(false)
	require.NoError(t, s.NextView(ctx))
	assert.Equal(t, 1, s.nav.Index())
}

func TestBodywork_ResaveWithoutEditsSendsNothing(t *testing.T) {
	erp := newFakeERP()
	s, _, _ := loadBodywork(t, erp)
	ctx := context.Background()

	res, err := s.Click(50, 50, fullRect)
	require.NoError(t, err)
	_, err = s.UpdatePoint(res.Point.LocalID, capture.PointPatch{DamageTypeID: models.Ptr(int64(2))})
	require.NoError(t, err)

	require.NoError(t, s.SaveStep(ctx))
	require.NoError(t, s.SaveStep(ctx))

	assert.Len(t, erp.mutations(), 1)
}

func TestBodywork_CompleteAfterReachingLastView(t *testing.T) {
	erp := newFakeERP()
	s, _, _ := loadBodywork(t, erp)
	ctx := context.Background()

	var reported []bool
	s.OnCompletion(func(done bool) { reported = append(reported, done) })

	for i := 0; i < len(models.BodyViews)-1; i++ {
		assert.False(t, s.Complete())
		require.NoError(t, s.NextView(ctx))
	}

	assert.True(t, s.Complete())
	assert.Equal(t, []bool{true}, reported)
	assert.True(t, errors.Is(s.NextView(ctx), apperror.ErrBoundary))
	assert.Empty(t, erp.mutations())

	require.NoError(t, s.PrevView(ctx))
	assert.True(t, s.Complete())
}

func TestBodywork_PointsWithUnknownViewAreSkipped(t *testing.T) {
	erp := newFakeERP()
	erp.points = `[
		{"detail_id": 1, "view": "front", "x": 10, "y": 20, "detail_notes": "a"},
		{"detail_id": 2, "view": "roof", "x": 10, "y": 20, "detail_notes": "b"},
		{"detail_id": 3, "view": "left", "x": 10, "y": 20, "detail_notes": "c"}
	]`
	s, _, _ := loadBodywork(t, erp)

	assert.Equal(t, 1, s.boards[0].Len())
	assert.Equal(t, 1, s.boards[3].Len())
	total := 0
	for _, b := range s.boards {
		total += b.Len()
	}
	assert.Equal(t, 2, total)
}

func TestBodywork_PhotoAttachReplaceRemove(t *testing.T) {
	erp := newFakeERP()
	s, photos, _ := loadBodywork(t, erp)
	ctx := context.Background()

	res, err := s.Click(50, 50, fullRect)
	require.NoError(t, err)
	id := res.Point.LocalID
	file := photo.File{Name: "a.jpg", ContentType: "image/jpeg", Data: []byte("x")}

	p, err := s.AttachPhoto(ctx, id, file)
	require.NoError(t, err)
	require.NotNil(t, p.PhotoPath)
	first := *p.PhotoPath
	assert.Equal(t, "http://blobs/12/carroceria/front/1.jpg", first)

	p, err = s.AttachPhoto(ctx, id, file)
	require.NoError(t, err)
	assert.NotEqual(t, first, *p.PhotoPath)
	assert.Equal(t, []string{first}, photos.deleted)

	p, err = s.RemovePhoto(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, p.PhotoPath)
	assert.Len(t, photos.deleted, 2)
}

func TestBodywork_ReplaceKeepsNewPhotoWhenOldDeleteFails(t *testing.T) {
	erp := newFakeERP()
	s, photos, notices := loadBodywork(t, erp)
	ctx := context.Background()

	res, err := s.Click(50, 50, fullRect)
	require.NoError(t, err)
	id := res.Point.LocalID
	file := photo.File{Name: "a.jpg", Data: []byte("x")}

	_, err = s.AttachPhoto(ctx, id, file)
	require.NoError(t, err)

	photos.deleteErr = errors.New("forbidden")
	p, err := s.AttachPhoto(ctx, id, file)

	require.NoError(t, err)
	assert.Equal(t, "http://blobs/12/carroceria/front/2.jpg", *p.PhotoPath)
	require.Len(t, notices.notices, 1)
	assert.Equal(t, NoticeWarning, notices.notices[0].Level)
}

func TestBodywork_RemovePhotoFailureKeepsField(t *testing.T) {
	erp := newFakeERP()
	erp.points = `[{"detail_id": 9, "view": "front", "x": 10, "y": 20, "detail_notes": "", "picture_path": "http://blobs/old.jpg"}]`
	s, photos, notices := loadBodywork(t, erp)
	photos.deleteErr = &apperror.NetworkError{Op: "delete photo", Err: errors.New("timeout")}

	_, err := s.RemovePhoto(context.Background(), localIDFor(t, s, 9))

	var deleteErr *photo.DeleteError
	assert.True(t, errors.As(err, &deleteErr))
	assert.True(t, apperror.IsNetwork(err))
	p, _ := s.board().Find(localIDFor(t, s, 9))
	require.NotNil(t, p.PhotoPath)
	assert.Equal(t, "http://blobs/old.jpg", *p.PhotoPath)
	assert.Empty(t, notices.notices)
}

func TestBodywork_RemovePhotoClearsUnreachableBlob(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		deleteErr error
	}{
		{
			name:      "blob already missing",
			url:       "http://blobs/old.jpg",
			deleteErr: apperror.ErrNotFound,
		},
		{
			name:      "url from another store",
			url:       "https://abc.supabase.co/storage/v1/object/public/photos/old.jpg",
			deleteErr: apperror.Invalid("url", "is outside this photo store"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			erp := newFakeERP()
			erp.points = `[{"detail_id": 9, "view": "front", "x": 10, "y": 20, "detail_notes": "", "picture_path": "` + tt.url + `"}]`
			s, photos, notices := loadBodywork(t, erp)
			photos.deleteErr = tt.deleteErr

			p, err := s.RemovePhoto(context.Background(), localIDFor(t, s, 9))

			require.NoError(t, err)
			assert.Nil(t, p.PhotoPath)
			stored, _ := s.board().Find(localIDFor(t, s, 9))
			assert.Nil(t, stored.PhotoPath)
			require.Len(t, notices.notices, 1)
			assert.Equal(t, NoticeWarning, notices.notices[0].Level)
		})
	}
}

func TestBodywork_RetryAfterPartialSaveDoesNotDuplicate(t *testing.T) {
	erp := newFakeERP()
	erp.points = `[{"detail_id": 42, "view": "front", "x": 10, "y": 20, "detail_notes": "old"}]`
	s, _, _ := loadBodywork(t, erp)
	ctx := context.Background()

	notes := "new"
	_, err := s.UpdatePoint(localIDFor(t, s, 42), capture.PointPatch{Notes: &notes})
	require.NoError(t, err)

	res, err := s.Click(50, 50, fullRect)
	require.NoError(t, err)
	fresh := res.Point.LocalID
	scratch := "scratch"
	_, err = s.UpdatePoint(fresh, capture.PointPatch{Notes: &scratch})
	require.NoError(t, err)

	erp.setFailPatches(true)
	err = s.NextView(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, s.nav.Index())

	p, ok := s.board().Find(fresh)
	require.True(t, ok)
	require.NotNil(t, p.ServerID)
	assert.Equal(t, int64(101), *p.ServerID)
	assert.Len(t, s.baseline[models.ViewFront], 1)

	erp.setFailPatches(false)
	require.NoError(t, s.NextView(ctx))

	assert.Equal(t, 1, erp.count(http.MethodPost, "/orders/bodywork-details/"))
	assert.Equal(t, 1, s.nav.Index())
	assert.Len(t, s.baseline[models.ViewFront], 2)
}

func TestBodywork_RemovePersistedPointFailure(t *testing.T) {
	erp := newFakeERP()
	erp.points = `[{"detail_id": 5, "view": "front", "x": 10, "y": 20, "detail_notes": "x"}]`
	s, _, _ := loadBodywork(t, erp)
	erp.setFailMutations(true)

	err := s.RemovePoint(context.Background(), localIDFor(t, s, 5))

	assert.True(t, apperror.IsNetwork(err))
	assert.Equal(t, 1, s.board().Len())
	assert.Len(t, s.baseline[models.ViewFront], 1)
}

func TestBodywork_UnknownDamageTypeRejected(t *testing.T) {
	erp := newFakeERP()
	s, _, _ := loadBodywork(t, erp)

	res, err := s.Click(50, 50, fullRect)
	require.NoError(t, err)

	_, err = s.UpdatePoint(res.Point.LocalID, capture.PointPatch{DamageTypeID: models.Ptr(int64(99))})
	assert.True(t, apperror.IsValidation(err))
}

func TestBodywork_State(t *testing.T) {
	erp := newFakeERP()
	erp.points = `[{"detail_id": 3, "view": "front", "x": 10, "y": 20, "detail_type": {"detail_type_id": 2}, "detail_notes": ""}]`
	s, _, _ := loadBodywork(t, erp)

	st := s.State()

	require.NotNil(t, st.Bodywork)
	assert.Nil(t, st.Generic)
	assert.Equal(t, models.KindBodywork, st.Kind)
	assert.Equal(t, models.ViewFront, st.Bodywork.View.Key)
	assert.True(t, st.Bodywork.IsFirstView)
	assert.Equal(t, 5, st.Bodywork.ViewCount)
	assert.Len(t, st.Bodywork.DamageTypes, 2)
	require.Len(t, st.Bodywork.Rows, 1)
	assert.Equal(t, "#1677ff", st.Bodywork.Rows[0].Color)
	assert.Equal(t, -1, st.Bodywork.SelectedIndex)
}
