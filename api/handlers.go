package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailstack/internal/apierr"
	"github.com/customeros/mailstack/internal/eventbus"
	"github.com/customeros/mailstack/internal/imapsession"
	"github.com/customeros/mailstack/internal/mcp"
	"github.com/customeros/mailstack/internal/models"
)

// Handlers holds the REST endpoints' dependencies: the same Services bundle
// the MCP tool handlers use, so both surfaces stay behaviorally identical.
type Handlers struct {
	Services *mcp.Services
}

func writeError(c *gin.Context, err error) {
	apiErr := apierr.As(err)
	c.JSON(apiErr.Status(), apiErr.Envelope(time.Now().UTC().Format(time.RFC3339)))
}

// resolveAccount picks the account a REST call operates against: the
// "account" query parameter if present, else the accounts store's default.
func (h *Handlers) resolveAccount(c *gin.Context) (*models.Account, error) {
	if email := c.Query("account"); email != "" {
		return h.Services.Accounts.GetAccount(email)
	}
	acct, err := h.Services.Accounts.GetDefaultAccount()
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, apierr.New(apierr.KindValidationFailed, "no account specified and no default account configured")
	}
	return acct, nil
}

func (h *Handlers) resolveFolder(accountEmail, name string) (*models.Folder, error) {
	f, err := h.Services.Cache.GetFolder(accountEmail, name)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, apierr.NotFound("folder", name)
	}
	return f, nil
}

func (h *Handlers) ListFolders(c *gin.Context) {
	account, err := h.resolveAccount(c)
	if err != nil {
		writeError(c, err)
		return
	}
	folders, err := h.Services.Cache.ListFolders(account.EmailAddress)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"folders": folders})
}

func (h *Handlers) CreateFolder(c *gin.Context) {
	var body struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apierr.New(apierr.KindMissingField, "name is required"))
		return
	}
	account, err := h.resolveAccount(c)
	if err != nil {
		writeError(c, err)
		return
	}

	lease, err := h.Services.Pool.Acquire(c.Request.Context(), account)
	if err != nil {
		writeError(c, err)
		return
	}
	defer lease.Release()
	if err := lease.Session.CreateFolder(c.Request.Context(), body.Name); err != nil {
		writeError(c, err)
		return
	}

	f := models.NewFolder(account.EmailAddress, body.Name, "/", nil)
	if err := h.Services.Cache.UpsertFolder(f); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (h *Handlers) RenameFolder(c *gin.Context) {
	oldName := c.Param("name")
	var body struct {
		NewName string `json:"new_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apierr.New(apierr.KindMissingField, "new_name is required"))
		return
	}
	account, err := h.resolveAccount(c)
	if err != nil {
		writeError(c, err)
		return
	}

	lease, err := h.Services.Pool.Acquire(c.Request.Context(), account)
	if err != nil {
		writeError(c, err)
		return
	}
	defer lease.Release()
	if err := lease.Session.RenameFolder(c.Request.Context(), oldName, body.NewName); err != nil {
		writeError(c, err)
		return
	}
	if err := h.Services.Cache.RenameFolder(account.EmailAddress, oldName, body.NewName); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) DeleteFolder(c *gin.Context) {
	name := c.Param("name")
	account, err := h.resolveAccount(c)
	if err != nil {
		writeError(c, err)
		return
	}

	lease, err := h.Services.Pool.Acquire(c.Request.Context(), account)
	if err != nil {
		writeError(c, err)
		return
	}
	defer lease.Release()
	if err := lease.Session.DeleteFolder(c.Request.Context(), name); err != nil {
		writeError(c, err)
		return
	}
	if err := h.Services.Cache.DeleteFolder(account.EmailAddress, name); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) ListEmails(c *gin.Context) {
	account, err := h.resolveAccount(c)
	if err != nil {
		writeError(c, err)
		return
	}
	f, err := h.resolveFolder(account.EmailAddress, c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	msgs, err := h.Services.Cache.ListMessages(account.EmailAddress, f.ID, limit, offset, true)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emails": msgs})
}

// AppendEmail appends a raw RFC 5322 message to a folder.
func (h *Handlers) AppendEmail(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil || len(raw) == 0 {
		writeError(c, apierr.New(apierr.KindMissingField, "request body must be a raw RFC 5322 message"))
		return
	}
	account, err := h.resolveAccount(c)
	if err != nil {
		writeError(c, err)
		return
	}
	folder := c.Param("name")

	lease, err := h.Services.Pool.Acquire(c.Request.Context(), account)
	if err != nil {
		writeError(c, err)
		return
	}
	defer lease.Release()
	if err := lease.Session.Append(c.Request.Context(), folder, nil, raw); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (h *Handlers) GetEmail(c *gin.Context) {
	account, err := h.resolveAccount(c)
	if err != nil {
		writeError(c, err)
		return
	}
	f, err := h.resolveFolder(account.EmailAddress, c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	uid, err := strconv.ParseUint(c.Param("uid"), 10, 32)
	if err != nil {
		writeError(c, apierr.New(apierr.KindInvalidFieldValue, "uid must be numeric"))
		return
	}
	msg, err := h.Services.Cache.GetMessageByUID(account.EmailAddress, f.ID, uint32(uid))
	if err != nil {
		writeError(c, err)
		return
	}
	if msg == nil {
		writeError(c, apierr.NotFound("email", c.Param("uid")))
		return
	}
	c.JSON(http.StatusOK, msg)
}

// UpdateEmailFlags adds/removes/sets IMAP flags on a single message.
func (h *Handlers) UpdateEmailFlags(c *gin.Context) {
	var body struct {
		Add    []string `json:"add"`
		Remove []string `json:"remove"`
		Set    []string `json:"set"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apierr.New(apierr.KindBadRequest, "invalid flag update body"))
		return
	}
	account, err := h.resolveAccount(c)
	if err != nil {
		writeError(c, err)
		return
	}
	folder := c.Param("name")
	uid, err := strconv.ParseUint(c.Param("uid"), 10, 32)
	if err != nil {
		writeError(c, apierr.New(apierr.KindInvalidFieldValue, "uid must be numeric"))
		return
	}

	lease, err := h.Services.Pool.Acquire(c.Request.Context(), account)
	if err != nil {
		writeError(c, err)
		return
	}
	defer lease.Release()
	if _, err := lease.Session.SelectFolder(c.Request.Context(), folder, false); err != nil {
		writeError(c, err)
		return
	}

	uids := []uint32{uint32(uid)}
	if len(body.Set) > 0 {
		if err := lease.Session.StoreFlags(c.Request.Context(), uids, imapsession.StoreReplace, body.Set); err != nil {
			writeError(c, err)
			return
		}
	}
	if len(body.Add) > 0 {
		if err := lease.Session.StoreFlags(c.Request.Context(), uids, imapsession.StoreAdd, body.Add); err != nil {
			writeError(c, err)
			return
		}
	}
	if len(body.Remove) > 0 {
		if err := lease.Session.StoreFlags(c.Request.Context(), uids, imapsession.StoreRemove, body.Remove); err != nil {
			writeError(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) DeleteEmail(c *gin.Context) {
	account, err := h.resolveAccount(c)
	if err != nil {
		writeError(c, err)
		return
	}
	folder := c.Param("name")
	uid, err := strconv.ParseUint(c.Param("uid"), 10, 32)
	if err != nil {
		writeError(c, apierr.New(apierr.KindInvalidFieldValue, "uid must be numeric"))
		return
	}

	lease, err := h.Services.Pool.Acquire(c.Request.Context(), account)
	if err != nil {
		writeError(c, err)
		return
	}
	defer lease.Release()
	if _, err := lease.Session.SelectFolder(c.Request.Context(), folder, false); err != nil {
		writeError(c, err)
		return
	}
	uids := []uint32{uint32(uid)}
	if err := lease.Session.StoreFlags(c.Request.Context(), uids, imapsession.StoreAdd, []string{`\Deleted`}); err != nil {
		writeError(c, err)
		return
	}
	if err := lease.Session.Expunge(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	if f, ferr := h.Services.Cache.GetFolder(account.EmailAddress, folder); ferr == nil && f != nil {
		_ = h.Services.Cache.DeleteMessagesByUID(account.EmailAddress, f.ID, uids)
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) MoveEmail(c *gin.Context) {
	var body struct {
		DestinationFolder string `json:"destination_folder" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apierr.New(apierr.KindMissingField, "destination_folder is required"))
		return
	}
	account, err := h.resolveAccount(c)
	if err != nil {
		writeError(c, err)
		return
	}
	folder := c.Param("name")
	uid, err := strconv.ParseUint(c.Param("uid"), 10, 32)
	if err != nil {
		writeError(c, apierr.New(apierr.KindInvalidFieldValue, "uid must be numeric"))
		return
	}

	lease, err := h.Services.Pool.Acquire(c.Request.Context(), account)
	if err != nil {
		writeError(c, err)
		return
	}
	defer lease.Release()
	if _, err := lease.Session.SelectFolder(c.Request.Context(), folder, false); err != nil {
		writeError(c, err)
		return
	}
	uids := []uint32{uint32(uid)}
	if err := lease.Session.Move(c.Request.Context(), uids, body.DestinationFolder); err != nil {
		writeError(c, err)
		return
	}

	if srcFolder, ferr := h.Services.Cache.GetFolder(account.EmailAddress, folder); ferr == nil && srcFolder != nil {
		if dstFolder, derr := h.Services.Cache.GetFolder(account.EmailAddress, body.DestinationFolder); derr == nil && dstFolder != nil {
			_ = h.Services.Cache.MoveMessage(account.EmailAddress, srcFolder.ID, dstFolder.ID, uint32(uid), uint32(uid))
		}
	}
	if h.Services.Bus != nil {
		h.Services.Bus.Publish(eventbus.TopicFolderChanged, gin.H{"account": account.EmailAddress, "folder": body.DestinationFolder})
	}
	c.Status(http.StatusOK)
}

func (h *Handlers) Search(c *gin.Context) {
	var body struct {
		Query  string `json:"query" binding:"required"`
		Folder string `json:"folder"`
		Limit  int    `json:"limit"`
		Offset int    `json:"offset"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apierr.New(apierr.KindMissingField, "query is required"))
		return
	}
	if body.Limit <= 0 {
		body.Limit = 50
	}
	account, err := h.resolveAccount(c)
	if err != nil {
		writeError(c, err)
		return
	}
	folderID := ""
	if body.Folder != "" {
		f, err := h.resolveFolder(account.EmailAddress, body.Folder)
		if err != nil {
			writeError(c, err)
			return
		}
		folderID = f.ID
	}
	msgs, err := h.Services.Cache.SearchMessages(account.EmailAddress, folderID, body.Query, body.Limit, body.Offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emails": msgs})
}

// DownloadAttachmentsZip streams every attachment on a cached message as a
// single ZIP archive (§4.4), failing with NotFound when the message has
// none.
func (h *Handlers) DownloadAttachmentsZip(c *gin.Context) {
	account, err := h.resolveAccount(c)
	if err != nil {
		writeError(c, err)
		return
	}
	f, err := h.resolveFolder(account.EmailAddress, c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	uid, err := strconv.ParseUint(c.Param("uid"), 10, 32)
	if err != nil {
		writeError(c, apierr.New(apierr.KindInvalidFieldValue, "uid must be numeric"))
		return
	}
	msg, err := h.Services.Cache.GetMessageByUID(account.EmailAddress, f.ID, uint32(uid))
	if err != nil {
		writeError(c, err)
		return
	}
	if msg == nil {
		writeError(c, apierr.NotFound("email", c.Param("uid")))
		return
	}

	atts, err := h.Services.Cache.ListAttachments(account.EmailAddress, msg.MessageID)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(atts) == 0 {
		writeError(c, apierr.NotFound("attachment", msg.MessageID))
		return
	}

	files := make(map[string]string, len(atts))
	for _, a := range atts {
		files[a.Filename] = a.StoragePath
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", `attachment; filename="attachments.zip"`)
	if err := h.Services.Attachments.WriteZip(c.Writer, files); err != nil {
		writeError(c, err)
		return
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
