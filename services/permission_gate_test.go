package services

import (
	"errors"
	"testing"

	"filemanager/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionGate_SinglePermissionOperations(t *testing.T) {
	gate := NewPermissionGate()

	tests := []struct {
		op   models.OperationKind
		perm models.Permission
	}{
		{models.OpUpload, models.PermUploadFilesAndFolders},
		{models.OpCreateFolder, models.PermCreateFolders},
		{models.OpDelete, models.PermDelete},
		{models.OpRename, models.PermRename},
		{models.OpMove, models.PermMoveFiles},
		{models.OpCopy, models.PermCopyFiles},
		{models.OpDownload, models.PermDownload},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			assert.NoError(t, gate.Authorize(models.NewActor("e", 2, "c", tt.perm), tt.op))

			err := gate.Authorize(models.NewActor("e", 2, "c", models.PermViewFileExplorer), tt.op)
			require.ErrorIs(t, err, ErrForbidden)

			var permErr *PermissionError
			require.True(t, errors.As(err, &permErr))
			assert.Equal(t, tt.op, permErr.Operation)
			assert.Equal(t, []models.Permission{tt.perm}, permErr.Missing)
		})
	}
}

func TestPermissionGate_BrowsingNeedsExplorerPermission(t *testing.T) {
	gate := NewPermissionGate()

	explorer := models.NewActor("e", 2, "c", models.PermViewFileExplorer)
	legacyGrants := models.NewActor("e", 2, "c", models.Permission("can_read_folders"), models.Permission("can_read_files"))
	nothing := models.NewActor("e", 2, "c")

	for _, op := range []models.OperationKind{models.OpList, models.OpView} {
		assert.NoError(t, gate.Authorize(explorer, op))
		assert.ErrorIs(t, gate.Authorize(legacyGrants, op), ErrForbidden)

		err := gate.Authorize(nothing, op)
		var permErr *PermissionError
		require.True(t, errors.As(err, &permErr))
		assert.Equal(t, []models.Permission{models.PermViewFileExplorer}, permErr.Missing)
	}
}

func TestPermissionGate_RootActorStillNeedsPermissions(t *testing.T) {
	gate := NewPermissionGate()
	admin := models.NewActor("admin", 0, "")

	assert.ErrorIs(t, gate.Authorize(admin, models.OpDelete), ErrForbidden)
}

func TestPermissionGate_UnknownOperationDenied(t *testing.T) {
	gate := NewPermissionGate()
	actor := models.NewActor("e", 0, "", models.PermDelete, models.PermViewFileExplorer)

	assert.ErrorIs(t, gate.Authorize(actor, models.OperationKind("purge")), ErrForbidden)
}
