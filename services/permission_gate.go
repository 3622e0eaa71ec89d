package services

import (
	"filemanager/models"
	"filemanager/utils"
)

// operationRequirements is the whole authorization policy. An operation is
// allowed when the actor holds every listed permission. Browsing (list,
// tree, view) is governed by the explorer permission alone.
var operationRequirements = map[models.OperationKind][]models.Permission{
	models.OpList:         {models.PermViewFileExplorer},
	models.OpView:         {models.PermViewFileExplorer},
	models.OpUpload:       {models.PermUploadFilesAndFolders},
	models.OpCreateFolder: {models.PermCreateFolders},
	models.OpDelete:       {models.PermDelete},
	models.OpRename:       {models.PermRename},
	models.OpMove:         {models.PermMoveFiles},
	models.OpCopy:         {models.PermCopyFiles},
	models.OpDownload:     {models.PermDownload},
}

type PermissionGate struct{}

func NewPermissionGate() *PermissionGate {
	return &PermissionGate{}
}

// Authorize returns a *PermissionError (matching ErrForbidden) when the
// actor lacks the operation's permissions. Unknown operations are denied.
func (g *PermissionGate) Authorize(actor *models.Actor, op models.OperationKind) error {
	required, ok := operationRequirements[op]
	if !ok {
		utils.LogWarningf("denied %s to actor %s: operation has no policy", op, actor.ID)
		return &PermissionError{Operation: op}
	}

	var missing []models.Permission
	for _, p := range required {
		if !actor.Has(p) {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	utils.LogWarningf("denied %s to actor %s: missing %v", op, actor.ID, missing)
	return &PermissionError{Operation: op, Missing: missing}
}
