package models

// Permission is a named capability granted to a position or an employee.
type Permission string

const (
	PermViewFileExplorer      Permission = "can_view_file_explorer"
	PermUploadFilesAndFolders Permission = "can_upload_files_and_folders"
	PermCreateFolders         Permission = "can_create_folders"
	PermDownload              Permission = "can_download_files_and_folders"
	PermCopyFiles             Permission = "can_copy_files"
	PermMoveFiles             Permission = "can_move_files"
	PermRename                Permission = "can_rename_files_and_folders"
	PermDelete                Permission = "can_delete_files_and_folders"
)

// OperationKind enumerates file tree actions.
type OperationKind string

const (
	OpList         OperationKind = "list"
	OpView         OperationKind = "view"
	OpUpload       OperationKind = "upload"
	OpCreateFolder OperationKind = "create_folder"
	OpDelete       OperationKind = "delete"
	OpRename       OperationKind = "rename"
	OpMove         OperationKind = "move"
	OpCopy         OperationKind = "copy"
	OpDownload     OperationKind = "download"
)
