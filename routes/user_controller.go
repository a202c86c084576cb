package routes

import (
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/feedpulse/feedpulse/app"
	"github.com/feedpulse/feedpulse/httpx"
	"github.com/feedpulse/feedpulse/log"
	"github.com/feedpulse/feedpulse/model"
	"github.com/feedpulse/feedpulse/report"
	"github.com/feedpulse/feedpulse/routes/middlewares"
	"github.com/feedpulse/feedpulse/store"
	"github.com/feedpulse/feedpulse/survey"
)

func CreateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			DisplayName   string            `json:"displayName"`
			SessionDate   string            `json:"sessionDate"`
			Fields        []model.FieldSpec `json:"fields"`
			Authenticated bool              `json:"isAuthenticated"`
			IPGuard       bool              `json:"ipGuard"`
		}
		err := render.DecodeJSON(r.Body, &body)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		id, err := app.Surveys.Create(r.Context(), survey.CreateInput{
			Owner:         middlewares.Email(r),
			DisplayName:   body.DisplayName,
			SessionDate:   body.SessionDate,
			Fields:        body.Fields,
			Authenticated: body.Authenticated,
			IPGuard:       body.IPGuard,
		})
		if err != nil {
			httpx.LogAppError(w, "survey.create", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": id,
		})
	}
}

func ListSurveys(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveys, err := app.Surveys.ListByOwner(r.Context(), middlewares.Email(r))
		if err != nil {
			httpx.LogAppError(w, "survey.list", err)
			return
		}

		// newest first on the dashboard
		sort.SliceStable(surveys, func(i, j int) bool {
			return surveys[i].CreatedAt.After(surveys[j].CreatedAt)
		})

		render.JSON(w, r, map[string]any{
			"surveys": surveys,
		})
	}
}

func GetSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sv, ok := ownedSurvey(app, w, r)
		if !ok {
			return
		}
		render.JSON(w, r, sv)
	}
}

func DeactivateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sv, ok := ownedSurvey(app, w, r)
		if !ok {
			return
		}

		err := app.Surveys.Deactivate(r.Context(), sv.ID)
		if err != nil {
			httpx.LogAppError(w, "survey.deactivate", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sv, ok := ownedSurvey(app, w, r)
		if !ok {
			return
		}

		err := app.Surveys.DeleteCascade(r.Context(), sv.ID)
		if err != nil {
			httpx.LogAppError(w, "survey.delete", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func ListResponses(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sv, ok := ownedSurvey(app, w, r)
		if !ok {
			return
		}

		responses, err := app.Surveys.Responses(r.Context(), sv.ID)
		if err != nil {
			httpx.LogAppError(w, "survey.responses", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"responses": responses,
		})
	}
}

func DeleteResponse(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responseID := chi.URLParam(r, "id")

		var rec model.ResponseRecord
		err := app.Store.Get(r.Context(), store.Responses, responseID, &rec)
		if err != nil {
			httpx.LogAppError(w, "response.get", err)
			return
		}

		// ownership runs through the parent survey
		sv, err := app.Surveys.Get(r.Context(), rec.SurveyID)
		if err != nil {
			httpx.LogAppError(w, "response.get_survey", err)
			return
		}
		if sv.CreatedBy != middlewares.Email(r) && !middlewares.IsAdmin(r) {
			httpx.LogNotFound(w, "response.delete", responseID)
			return
		}

		err = app.Surveys.DeleteResponse(r.Context(), responseID)
		if err != nil {
			httpx.LogAppError(w, "response.delete", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func GetReport(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sv, ok := ownedSurvey(app, w, r)
		if !ok {
			return
		}

		responses, err := app.Surveys.Responses(r.Context(), sv.ID)
		if err != nil {
			httpx.LogAppError(w, "report.responses", err)
			return
		}

		name, date := sv.Heading()
		render.JSON(w, r, map[string]any{
			"survey": map[string]any{
				"id":          sv.ID,
				"displayName": name,
				"sessionDate": date,
				"active":      sv.Active,
			},
			"columns":    report.BuildColumnSet(sv, responses),
			"statistics": report.ComputeStatistics(sv, responses),
			"table":      report.BuildExportTable(sv, responses),
		})
	}
}

func ExportReport(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sv, ok := ownedSurvey(app, w, r)
		if !ok {
			return
		}

		format := r.URL.Query().Get("format")
		if format == "" {
			format = "csv"
		}
		if format != "csv" && format != "xlsx" {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "export.format",
				"unsupported export format %q", format)
			return
		}

		responses, err := app.Surveys.Responses(r.Context(), sv.ID)
		if err != nil {
			httpx.LogAppError(w, "export.responses", err)
			return
		}
		table := report.BuildExportTable(sv, responses)

		w.Header().Set("content-disposition", `attachment; filename="`+exportFilename(sv, format)+`"`)
		switch format {
		case "xlsx":
			w.Header().Set("content-type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			err = report.WriteXLSX(table, w)
		default:
			w.Header().Set("content-type", "text/csv")
			err = report.WriteCSV(table, w)
		}
		if err != nil {
			// headers are gone at this point, only log
			log.Errorf("export.write: %s: %s", sv.ID, err)
		}
	}
}

// ownedSurvey loads the survey from the url and checks it belongs to the
// caller. Admins pass the check for any survey; everyone else gets a 404, so
// foreign survey ids stay unconfirmed.
func ownedSurvey(app app.App, w http.ResponseWriter, r *http.Request) (model.Survey, bool) {
	sv, err := app.Surveys.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.LogAppError(w, "survey.get", err)
		return model.Survey{}, false
	}
	if sv.CreatedBy != middlewares.Email(r) && !middlewares.IsAdmin(r) {
		httpx.LogNotFound(w, "survey.get", sv.ID)
		return model.Survey{}, false
	}
	return sv, true
}

var reUnsafeFilename = regexp.MustCompile(`[^\w\- ]+`)

func exportFilename(sv model.Survey, ext string) string {
	name, _ := sv.Heading()
	name = reUnsafeFilename.ReplaceAllLiteralString(name, "")
	name = strings.Join(strings.Fields(name), "_")
	if name == "" {
		name = "Survey"
	}
	return name + "_Report." + ext
}
