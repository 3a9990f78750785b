package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"ultrashots/models"
	"ultrashots/pkg/accounts"
	"ultrashots/pkg/database"
	"ultrashots/pkg/exceptions"
	"ultrashots/pkg/inertia"
	"ultrashots/pkg/media"
)

// Paginated is a page of records in the shape the client side tables expect.
type Paginated[T any] struct {
	Data        []T   `json:"data"`
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	LastPage    int   `json:"last_page"`
}

// paginate reads ?page and ?per_page (default 15, max 100) and runs q for that page,
// loading the named associations of the returned rows.
func paginate[T any](c *gin.Context, q *gorm.DB, order string, preload ...string) (Paginated[T], error) {
	page, _ := strconv.Atoi(c.Query("page"))
	page = max(page, 1)
	per, err := strconv.Atoi(c.DefaultQuery("per_page", "15"))
	if err != nil || per < 1 {
		per = 15
	}
	per = min(per, 100)

	res := Paginated[T]{CurrentPage: page, PerPage: per, Data: []T{}}
	if err := q.Session(&gorm.Session{}).Count(&res.Total).Error; err != nil {
		return res, err
	}
	res.LastPage = max(int((res.Total+int64(per)-1)/int64(per)), 1)
	find := q.Session(&gorm.Session{})
	for _, p := range preload {
		find = find.Preload(p)
	}
	if err := find.Order(order).Offset((page - 1) * per).Limit(per).Find(&res.Data).Error; err != nil {
		return res, err
	}
	return res, nil
}

// fail hands err to the exception handler with the status it resolves to.
func fail(c *gin.Context, err error) {
	exceptions.Abort(c, exceptions.StatusOf(err), err)
}

func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		exceptions.Abort(c, http.StatusNotFound, exceptions.New(http.StatusNotFound, "Not Found"))
		return 0, false
	}
	return uint(id), true
}

func likePattern(q string) string {
	return "%" + strings.ToLower(strings.TrimSpace(q)) + "%"
}

// Stats are the dashboard counters.
type Stats struct {
	Customers        int64            `json:"customers"`
	ActiveCustomers  int64            `json:"active_customers"`
	Projects         int64            `json:"projects"`
	FeaturedProjects int64            `json:"featured_projects"`
	ProjectsByStatus map[string]int64 `json:"projects_by_status"`
	Subscribers      int64            `json:"subscribers"`
	Users            int64            `json:"users"`
	Logos            int64            `json:"logos"`
	LogoDownloads    int64            `json:"logo_downloads"`
	RecentProjects   []models.Project `json:"recent_projects"`
}

func (a *App) stats(ctx context.Context) (Stats, error) {
	db := a.db.WithContext(ctx)
	s := Stats{ProjectsByStatus: map[string]int64{}}
	counts := []struct {
		dst   *int64
		model any
		where []any
	}{
		{&s.Customers, &models.Customer{}, nil},
		{&s.ActiveCustomers, &models.Customer{}, []any{"status = ?", models.CustomerActive}},
		{&s.Projects, &models.Project{}, nil},
		{&s.FeaturedProjects, &models.Project{}, []any{"featured = ?", true}},
		{&s.Subscribers, &models.Subscriber{}, []any{"status = ?", models.SubscriberSubscribed}},
		{&s.Users, &models.User{}, nil},
		{&s.Logos, &models.Logo{}, nil},
	}
	for _, cnt := range counts {
		q := db.Model(cnt.model)
		if len(cnt.where) > 0 {
			q = q.Where(cnt.where[0], cnt.where[1:]...)
		}
		if err := q.Count(cnt.dst).Error; err != nil {
			return s, err
		}
	}
	if err := db.Model(&models.Logo{}).Select("COALESCE(SUM(downloads),0)").Scan(&s.LogoDownloads).Error; err != nil {
		return s, err
	}

	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.Project{}).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return s, err
	}
	for _, st := range models.ProjectStatuses {
		s.ProjectsByStatus[st] = 0
	}
	for _, r := range rows {
		s.ProjectsByStatus[r.Status] = r.Count
	}
	if err := db.Preload("Customer").Order("created_at desc, id desc").Limit(5).Find(&s.RecentProjects).Error; err != nil {
		return s, err
	}
	return s, nil
}

func (a *App) dashboard(c *gin.Context) {
	s, err := a.stats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	a.inertia.Render(c, "Dashboard", inertia.Props{"title": "Dashboard", "stats": s})
}

// customers

type customerForm struct {
	Name    string `json:"name" form:"name" binding:"required,max=255"`
	Company string `json:"company" form:"company" binding:"max=255"`
	Email   string `json:"email" form:"email" binding:"required,email,max=255"`
	Phone   string `json:"phone" form:"phone" binding:"max=64"`
	Website string `json:"website" form:"website" binding:"omitempty,url,max=255"`
	Country string `json:"country" form:"country" binding:"max=64"`
	Status  string `json:"status" form:"status" binding:"required,oneof=active inactive lead"`
	Notes   string `json:"notes" form:"notes"`
}

func (f customerForm) apply(cu *models.Customer) {
	cu.Name = strings.TrimSpace(f.Name)
	cu.Company = strings.TrimSpace(f.Company)
	cu.Email = strings.ToLower(strings.TrimSpace(f.Email))
	cu.Phone = f.Phone
	cu.Website = f.Website
	cu.Country = f.Country
	cu.Status = f.Status
	cu.Notes = f.Notes
}

func (a *App) customersQuery(c *gin.Context) *gorm.DB {
	q := a.db.WithContext(c.Request.Context()).Model(&models.Customer{})
	if s := c.Query("q"); strings.TrimSpace(s) != "" {
		like := likePattern(s)
		q = q.Where("LOWER(name) LIKE ? OR LOWER(company) LIKE ? OR LOWER(email) LIKE ?", like, like, like)
	}
	if st := c.Query("status"); slices.Contains(models.CustomerStatuses, st) {
		q = q.Where("status = ?", st)
	}
	return q
}

func (a *App) listCustomers(c *gin.Context) {
	res, err := paginate[models.Customer](c, a.customersQuery(c), "name, id")
	if err != nil {
		fail(c, err)
		return
	}
	a.inertia.Render(c, "Customers/Index", inertia.Props{
		"title":     "Customers",
		"customers": res,
		"filters":   gin.H{"q": c.Query("q"), "status": c.Query("status")},
		"statuses":  models.CustomerStatuses,
	})
}

func (a *App) findCustomer(c *gin.Context, preload ...string) (*models.Customer, bool) {
	id, ok := paramID(c)
	if !ok {
		return nil, false
	}
	q := a.db.WithContext(c.Request.Context())
	for _, p := range preload {
		q = q.Preload(p)
	}
	var cu models.Customer
	if err := q.First(&cu, id).Error; err != nil {
		fail(c, err)
		return nil, false
	}
	return &cu, true
}

func (a *App) showCustomer(c *gin.Context) {
	cu, ok := a.findCustomer(c, "Projects", "Logos")
	if !ok {
		return
	}
	a.inertia.Render(c, "Customers/Show", inertia.Props{
		"title":    cu.Name,
		"customer": cu,
		"statuses": models.CustomerStatuses,
	})
}

func (a *App) createCustomer(c *gin.Context) {
	var form customerForm
	if err := c.ShouldBind(&form); err != nil {
		a.invalid(c, validationErrors(err))
		return
	}
	var cu models.Customer
	form.apply(&cu)
	if err := a.db.WithContext(c.Request.Context()).Create(&cu).Error; err != nil {
		if database.IsUniqueConstraintError(err) {
			a.invalid(c, map[string]string{"email": "The email has already been taken."})
			return
		}
		fail(c, err)
		return
	}
	a.publish("customers", "customer.created", cu)
	notify(c, "success", fmt.Sprintf("Customer %s created.", cu.Name))
	inertia.Redirect(c, fmt.Sprintf("/customers/%d", cu.ID))
}

func (a *App) updateCustomer(c *gin.Context) {
	cu, ok := a.findCustomer(c)
	if !ok {
		return
	}
	var form customerForm
	if err := c.ShouldBind(&form); err != nil {
		a.invalid(c, validationErrors(err))
		return
	}
	form.apply(cu)
	if err := a.db.WithContext(c.Request.Context()).Save(cu).Error; err != nil {
		if database.IsUniqueConstraintError(err) {
			a.invalid(c, map[string]string{"email": "The email has already been taken."})
			return
		}
		fail(c, err)
		return
	}
	a.publish("customers", "customer.updated", cu)
	notify(c, "success", "Customer updated.")
	inertia.Redirect(c, fmt.Sprintf("/customers/%d", cu.ID))
}

func (a *App) deleteCustomer(c *gin.Context) {
	cu, ok := a.findCustomer(c)
	if !ok {
		return
	}
	if err := a.db.WithContext(c.Request.Context()).Delete(cu).Error; err != nil {
		fail(c, err)
		return
	}
	a.publish("customers", "customer.deleted", gin.H{"id": cu.ID})
	notify(c, "success", fmt.Sprintf("Customer %s deleted.", cu.Name))
	inertia.Redirect(c, "/customers")
}

// uploadCustomerLogo stores the "logo" file of a multipart form as a new logo of the customer.
func (a *App) uploadCustomerLogo(c *gin.Context) {
	cu, ok := a.findCustomer(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("logo")
	if err != nil {
		a.invalid(c, map[string]string{"logo": "The logo field is required."})
		return
	}
	st, err := a.media.SaveUpload(fh, "logos")
	if err != nil {
		if errors.Is(err, media.ErrTooLarge) || errors.Is(err, media.ErrUnsupportedType) {
			a.invalid(c, map[string]string{"logo": err.Error()})
			return
		}
		fail(c, err)
		return
	}
	name := cu.Company
	if name == "" {
		name = cu.Name
	}
	logo := models.Logo{
		CustomerID:  &cu.ID,
		Name:        name,
		FileName:    path.Base(st.StorePath),
		StorePath:   st.StorePath,
		ThumbPath:   st.ThumbPath,
		ContentType: st.ContentType,
	}
	if err := a.db.WithContext(c.Request.Context()).Create(&logo).Error; err != nil {
		a.media.Remove(st.StorePath, st.ThumbPath)
		fail(c, err)
		return
	}
	a.publish("customers", "customer.updated", gin.H{"id": cu.ID, "logo_id": logo.ID})
	notify(c, "success", "Logo uploaded.")
	inertia.Back(c)
}

// projects

type projectForm struct {
	CustomerID  uint   `json:"customer_id" form:"customer_id" binding:"required"`
	Title       string `json:"title" form:"title" binding:"required,max=255"`
	Description string `json:"description" form:"description"`
	Status      string `json:"status" form:"status" binding:"required,oneof=planning in_progress on_hold completed cancelled"`
	Budget      int64  `json:"budget" form:"budget" binding:"gte=0"`
	StartDate   string `json:"start_date" form:"start_date" binding:"omitempty,datetime=2006-01-02"`
	DueDate     string `json:"due_date" form:"due_date" binding:"omitempty,datetime=2006-01-02"`
	Featured    bool   `json:"featured" form:"featured"`
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil
	}
	return &t
}

func (f projectForm) apply(p *models.Project, now time.Time) {
	p.CustomerID = f.CustomerID
	p.Title = strings.TrimSpace(f.Title)
	p.Description = f.Description
	p.Budget = f.Budget
	p.StartDate = parseDate(f.StartDate)
	p.DueDate = parseDate(f.DueDate)
	p.Featured = f.Featured
	switch {
	case f.Status == models.ProjectCompleted && p.CompletedAt == nil:
		p.CompletedAt = &now
	case f.Status != models.ProjectCompleted:
		p.CompletedAt = nil
	}
	p.Status = f.Status
}

// bindProject validates the form and that its customer exists.
func (a *App) bindProject(c *gin.Context) (projectForm, bool) {
	var form projectForm
	if err := c.ShouldBind(&form); err != nil {
		a.invalid(c, validationErrors(err))
		return form, false
	}
	var n int64
	if err := a.db.WithContext(c.Request.Context()).Model(&models.Customer{}).Where("id = ?", form.CustomerID).Count(&n).Error; err != nil {
		fail(c, err)
		return form, false
	}
	if n == 0 {
		a.invalid(c, map[string]string{"customer_id": "The selected customer id is invalid."})
		return form, false
	}
	return form, true
}

// uniqueSlug derives a slug from title, suffixing -2, -3... while taken by another project.
func (a *App) uniqueSlug(ctx context.Context, title string, ignoreID uint) (string, error) {
	base := models.Slugify(title)
	if base == "" {
		base = "project"
	}
	slug := base
	for i := 2; ; i++ {
		var n int64
		if err := a.db.WithContext(ctx).Model(&models.Project{}).Where("slug = ? AND id <> ?", slug, ignoreID).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

// slugAttempts bounds how often saveProject picks a new slug after losing it to another write.
const slugAttempts = 5

// saveProject inserts or updates p. With reslug set it derives the slug from the title and
// picks the next free one when the insert hits the unique index.
func (a *App) saveProject(ctx context.Context, p *models.Project, reslug bool) error {
	isNew := p.ID == 0
	for attempt := 1; ; attempt++ {
		if reslug {
			slug, err := a.uniqueSlug(ctx, p.Title, p.ID)
			if err != nil {
				return err
			}
			p.Slug = slug
		}
		var err error
		if isNew {
			err = a.db.WithContext(ctx).Create(p).Error
		} else {
			err = a.db.WithContext(ctx).Save(p).Error
		}
		if err == nil || !reslug || attempt == slugAttempts || !database.IsUniqueConstraintError(err) {
			return err
		}
		a.log.Debug("project slug taken, retrying", "slug", p.Slug, "attempt", attempt)
		if isNew {
			p.ID = 0
		}
	}
}

func (a *App) projectsQuery(c *gin.Context) *gorm.DB {
	q := a.db.WithContext(c.Request.Context()).Model(&models.Project{})
	if st := c.Query("status"); slices.Contains(models.ProjectStatuses, st) {
		q = q.Where("status = ?", st)
	}
	if id, err := strconv.ParseUint(c.Query("customer_id"), 10, 64); err == nil && id > 0 {
		q = q.Where("customer_id = ?", id)
	}
	if s := c.Query("q"); strings.TrimSpace(s) != "" {
		q = q.Where("LOWER(title) LIKE ?", likePattern(s))
	}
	return q
}

func (a *App) listProjects(c *gin.Context) {
	res, err := paginate[models.Project](c, a.projectsQuery(c), "created_at desc, id desc", "Customer")
	if err != nil {
		fail(c, err)
		return
	}
	a.inertia.Render(c, "Projects/Index", inertia.Props{
		"title":    "Projects",
		"projects": res,
		"filters":  gin.H{"q": c.Query("q"), "status": c.Query("status"), "customer_id": c.Query("customer_id")},
		"statuses": models.ProjectStatuses,
		// only loaded when the create dialog asks for it
		"customers": inertia.LazyProp(func() any {
			var list []models.Customer
			if err := a.db.WithContext(c.Request.Context()).Select("id", "name", "company").Order("name").Find(&list).Error; err != nil {
				a.log.Error("load customer options failed", "error", err)
				return []models.Customer{}
			}
			return list
		}),
	})
}

func (a *App) findProject(c *gin.Context) (*models.Project, bool) {
	id, ok := paramID(c)
	if !ok {
		return nil, false
	}
	var p models.Project
	if err := a.db.WithContext(c.Request.Context()).Preload("Customer").First(&p, id).Error; err != nil {
		fail(c, err)
		return nil, false
	}
	return &p, true
}

func (a *App) showProject(c *gin.Context) {
	p, ok := a.findProject(c)
	if !ok {
		return
	}
	a.inertia.Render(c, "Projects/Show", inertia.Props{"title": p.Title, "project": p, "statuses": models.ProjectStatuses})
}

func (a *App) createProject(c *gin.Context) {
	form, ok := a.bindProject(c)
	if !ok {
		return
	}
	var p models.Project
	form.apply(&p, time.Now())
	if err := a.saveProject(c.Request.Context(), &p, true); err != nil {
		fail(c, err)
		return
	}
	a.publish("projects", "project.created", p)
	notify(c, "success", fmt.Sprintf("Project %s created.", p.Title))
	inertia.Redirect(c, fmt.Sprintf("/projects/%d", p.ID))
}

func (a *App) updateProject(c *gin.Context) {
	p, ok := a.findProject(c)
	if !ok {
		return
	}
	form, ok := a.bindProject(c)
	if !ok {
		return
	}
	oldTitle := p.Title
	form.apply(p, time.Now())
	p.Customer = nil
	if err := a.saveProject(c.Request.Context(), p, p.Title != oldTitle); err != nil {
		fail(c, err)
		return
	}
	a.publish("projects", "project.updated", p)
	notify(c, "success", "Project updated.")
	inertia.Redirect(c, fmt.Sprintf("/projects/%d", p.ID))
}

func (a *App) deleteProject(c *gin.Context) {
	p, ok := a.findProject(c)
	if !ok {
		return
	}
	if err := a.db.WithContext(c.Request.Context()).Delete(p).Error; err != nil {
		fail(c, err)
		return
	}
	a.publish("projects", "project.deleted", gin.H{"id": p.ID})
	notify(c, "success", fmt.Sprintf("Project %s deleted.", p.Title))
	inertia.Redirect(c, "/projects")
}

// subscribers

func (a *App) listSubscribers(c *gin.Context) {
	q := a.db.WithContext(c.Request.Context()).Model(&models.Subscriber{})
	if st := c.Query("status"); st == models.SubscriberPending || st == models.SubscriberSubscribed || st == models.SubscriberUnsubscribed {
		q = q.Where("status = ?", st)
	}
	if s := c.Query("q"); strings.TrimSpace(s) != "" {
		like := likePattern(s)
		q = q.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", like, like)
	}
	res, err := paginate[models.Subscriber](c, q, "created_at desc, id desc")
	if err != nil {
		fail(c, err)
		return
	}
	a.inertia.Render(c, "Subscribers/Index", inertia.Props{
		"title":       "Subscribers",
		"subscribers": res,
		"filters":     gin.H{"q": c.Query("q"), "status": c.Query("status")},
	})
}

func (a *App) deleteSubscriber(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var s models.Subscriber
	db := a.db.WithContext(c.Request.Context())
	if err := db.First(&s, id).Error; err != nil {
		fail(c, err)
		return
	}
	if err := db.Delete(&s).Error; err != nil {
		fail(c, err)
		return
	}
	notify(c, "success", fmt.Sprintf("Subscriber %s removed.", s.Email))
	inertia.Redirect(c, "/subscribers")
}

type subscribeForm struct {
	Email string `json:"email" form:"email" binding:"required,email,max=255"`
	Name  string `json:"name" form:"name" binding:"max=255"`
}

// subscribe adds a newsletter subscriber from the public site. Subscribing again after
// unsubscribing reactivates the address.
func (a *App) subscribe(c *gin.Context) {
	var form subscribeForm
	if err := c.ShouldBind(&form); err != nil {
		a.invalid(c, validationErrors(err))
		return
	}
	email := strings.ToLower(strings.TrimSpace(form.Email))
	now := time.Now()
	db := a.db.WithContext(c.Request.Context())

	var s models.Subscriber
	err := db.Where("email = ?", email).First(&s).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		s = models.Subscriber{
			Email:        email,
			Name:         strings.TrimSpace(form.Name),
			Status:       models.SubscriberSubscribed,
			Token:        uuid.NewString(),
			Source:       "website",
			SubscribedAt: &now,
		}
		if err := db.Create(&s).Error; err != nil && !database.IsUniqueConstraintError(err) {
			fail(c, err)
			return
		}
	case err != nil:
		fail(c, err)
		return
	case s.Status != models.SubscriberSubscribed:
		s.Status = models.SubscriberSubscribed
		s.SubscribedAt = &now
		s.UnsubscribedAt = nil
		if err := db.Save(&s).Error; err != nil {
			fail(c, err)
			return
		}
	}

	msg := "Thanks for subscribing."
	if exceptions.WantsJSON(c.Request) {
		c.JSON(http.StatusOK, gin.H{"message": msg})
		return
	}
	notify(c, "success", msg)
	inertia.Back(c)
}

func (a *App) unsubscribe(c *gin.Context) {
	db := a.db.WithContext(c.Request.Context())
	var s models.Subscriber
	if err := db.Where("token = ?", c.Param("token")).First(&s).Error; err != nil {
		fail(c, err)
		return
	}
	if s.Status != models.SubscriberUnsubscribed {
		now := time.Now()
		s.Status = models.SubscriberUnsubscribed
		s.UnsubscribedAt = &now
		if err := db.Save(&s).Error; err != nil {
			fail(c, err)
			return
		}
	}
	a.inertia.Render(c, "Newsletter/Unsubscribed", inertia.Props{"title": "Unsubscribed", "email": s.Email})
}

// users

func (a *App) listUsers(c *gin.Context) {
	q := a.db.WithContext(c.Request.Context()).Model(&models.User{})
	if s := c.Query("q"); strings.TrimSpace(s) != "" {
		like := likePattern(s)
		q = q.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}
	res, err := paginate[models.User](c, q, "name, id", "Role")
	if err != nil {
		fail(c, err)
		return
	}
	var roles []models.Role
	if err := a.db.WithContext(c.Request.Context()).Order("id").Find(&roles).Error; err != nil {
		fail(c, err)
		return
	}
	a.inertia.Render(c, "Users/Index", inertia.Props{"title": "Users", "users": res, "roles": roles})
}

type userForm struct {
	Name     string `json:"name" form:"name" binding:"required,max=255"`
	Email    string `json:"email" form:"email" binding:"required,email,max=255"`
	Password string `json:"password" form:"password" binding:"required,min=8"`
	Role     string `json:"role" form:"role" binding:"required"`
}

func (a *App) createUser(c *gin.Context) {
	var form userForm
	if err := c.ShouldBind(&form); err != nil {
		a.invalid(c, validationErrors(err))
		return
	}
	u, err := a.accounts.Register(c.Request.Context(), form.Name, form.Email, form.Password, form.Role)
	if err != nil {
		if !isAccountsValidation(err) {
			fail(c, err)
			return
		}
		switch {
		case errors.Is(err, accounts.ErrUserExists):
			a.invalid(c, map[string]string{"email": "The email has already been taken."})
		case errors.Is(err, accounts.ErrRoleNotFound):
			a.invalid(c, map[string]string{"role": "The selected role is invalid."})
		default:
			a.invalid(c, map[string]string{"password": err.Error()})
		}
		return
	}
	notify(c, "success", fmt.Sprintf("User %s created.", u.Name))
	inertia.Redirect(c, "/users")
}

type roleForm struct {
	Role string `json:"role" form:"role" binding:"required"`
}

func (a *App) updateUserRole(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var form roleForm
	if err := c.ShouldBind(&form); err != nil {
		a.invalid(c, validationErrors(err))
		return
	}
	if me := a.currentUser(c); me != nil && me.ID == id && form.Role != me.Role.Name {
		exceptions.Abort(c, http.StatusForbidden, exceptions.New(http.StatusForbidden, "You cannot change your own role."))
		return
	}
	u, err := a.accounts.AssignRole(c.Request.Context(), id, form.Role)
	switch {
	case errors.Is(err, accounts.ErrRoleNotFound):
		a.invalid(c, map[string]string{"role": "The selected role is invalid."})
		return
	case errors.Is(err, accounts.ErrUserNotFound):
		exceptions.Abort(c, http.StatusNotFound, err)
		return
	case err != nil:
		fail(c, err)
		return
	}
	a.publish(fmt.Sprintf("users.%d", u.ID), "role.updated", gin.H{"role": u.Role.Name, "permissions": u.Role.PermissionNames()})
	notify(c, "success", fmt.Sprintf("%s is now %s.", u.Name, u.Role.Label()))
	inertia.Redirect(c, "/users")
}

// logos

func (a *App) listLogos(c *gin.Context) {
	q := a.db.WithContext(c.Request.Context()).Model(&logoRow{})
	if s := c.Query("q"); strings.TrimSpace(s) != "" {
		q = q.Where("LOWER(name) LIKE ?", likePattern(s))
	}
	res, err := paginate[logoRow](c, q, "name, id", "Customer")
	if err != nil {
		fail(c, err)
		return
	}
	a.inertia.Render(c, "Logos/Index", inertia.Props{"title": "Logos", "logos": res})
}

// logoRow is a logo with its optional owner.
type logoRow struct {
	models.Logo
	Customer *models.Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
}

func (logoRow) TableName() string { return "logos" }

// downloadLogo sends the file and counts the download.
func (a *App) downloadLogo(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	db := a.db.WithContext(c.Request.Context())
	var logo models.Logo
	if err := db.First(&logo, id).Error; err != nil {
		fail(c, err)
		return
	}
	full, err := a.media.Path(logo.StorePath)
	if err != nil {
		exceptions.Abort(c, http.StatusNotFound, err)
		return
	}
	if !fileExists(full) {
		exceptions.Abort(c, http.StatusNotFound, exceptions.New(http.StatusNotFound, "File not found."))
		return
	}
	if err := db.Model(&logo).UpdateColumn("downloads", gorm.Expr("downloads + ?", 1)).Error; err != nil {
		a.log.Warn("count download failed", "logo_id", logo.ID, "error", err)
	}
	c.FileAttachment(full, logo.FileName)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}
