package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/lunar-fishing-service/internal/client"
	"github.com/kjstillabower/lunar-fishing-service/internal/lunar"
	"github.com/kjstillabower/lunar-fishing-service/internal/models"
)

// stubFetcher answers per query string. Queries listed in hold block until
// released, which lets tests finish requests out of order.
type stubFetcher struct {
	mu       sync.Mutex
	calls    []string
	errs     map[string]error
	astroErr error
	hold     map[string]chan struct{}
}

func (f *stubFetcher) record(q string) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	ch := f.hold[q]
	f.mu.Unlock()
	if ch != nil {
		<-ch
	}
}

func (f *stubFetcher) snapshot(q, date string) (models.WeatherSnapshot, error) {
	if err := f.errs[q]; err != nil {
		return models.WeatherSnapshot{}, err
	}
	return models.WeatherSnapshot{
		Location: models.Location{Name: q},
		Astro:    &models.Astro{MoonPhase: "Full Moon", MoonIllumination: 100},
		Date:     date,
	}, nil
}

func (f *stubFetcher) Current(ctx context.Context, q string) (models.WeatherSnapshot, error) {
	f.record(q)
	return f.snapshot(q, "2024-01-25")
}

func (f *stubFetcher) ForDate(ctx context.Context, q string, date time.Time) (models.WeatherSnapshot, error) {
	f.record(q)
	return f.snapshot(q, date.Format(time.DateOnly))
}

func (f *stubFetcher) AstronomyForDate(ctx context.Context, q string, date time.Time) (models.AstronomySnapshot, error) {
	f.record("astro:" + q)
	if f.astroErr != nil {
		return models.AstronomySnapshot{}, f.astroErr
	}
	return models.AstronomySnapshot{
		Location: models.Location{Name: q},
		Astro:    models.Astro{MoonPhase: "Waxing Gibbous"},
		Date:     date.Format(time.DateOnly),
	}, nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestGeolocation_Query(t *testing.T) {
	g := Geolocation{Granted: true, Lat: -23.5505, Lon: -46.6333}
	if got := g.Query(); got != "-23.5505,-46.6333" {
		t.Errorf("Query() = %q", got)
	}
}

func TestWeatherView_ByCurrentLocation_Granted(t *testing.T) {
	f := &stubFetcher{}
	v := NewWeatherView(f, "")

	st, err := v.ByCurrentLocation(context.Background(), Geolocation{Granted: true, Lat: -23.96, Lon: -46.33})
	if err != nil {
		t.Fatalf("ByCurrentLocation() error = %v", err)
	}
	if st.LocationDenied {
		t.Error("LocationDenied = true, want false")
	}
	if st.Loading {
		t.Error("Loading = true after completion")
	}
	if st.Data == nil || st.Data.Location.Name != "-23.96,-46.33" {
		t.Fatalf("Data = %+v", st.Data)
	}
}

func TestWeatherView_ByCurrentLocation_DeniedFallsBack(t *testing.T) {
	f := &stubFetcher{}
	v := NewWeatherView(f, "")

	st, err := v.ByCurrentLocation(context.Background(), Geolocation{})
	if err != nil {
		t.Fatalf("ByCurrentLocation() error = %v, want nil (fallback is not an error)", err)
	}
	if !st.LocationDenied {
		t.Error("LocationDenied = false, want true")
	}
	if st.Data == nil || st.Data.Location.Name != DefaultLocation {
		t.Errorf("Data location = %+v, want %s", st.Data, DefaultLocation)
	}
	if st.Error != "" {
		t.Errorf("Error = %q, want empty", st.Error)
	}
}

func TestWeatherView_ByCity_BlankIsNoop(t *testing.T) {
	f := &stubFetcher{}
	v := NewWeatherView(f, "")

	for _, name := range []string{"", "   ", "\t"} {
		st, err := v.ByCity(context.Background(), name)
		if err != nil {
			t.Errorf("ByCity(%q) error = %v", name, err)
		}
		if st.Loading || st.Data != nil || st.Seq != 0 {
			t.Errorf("ByCity(%q) changed state: %+v", name, st)
		}
	}
	if n := f.callCount(); n != 0 {
		t.Errorf("fetcher calls = %d, want 0", n)
	}
}

func TestWeatherView_ByCity_SuccessClearsDenied(t *testing.T) {
	f := &stubFetcher{}
	v := NewWeatherView(f, "")
	ctx := context.Background()

	_, _ = v.ByCurrentLocation(ctx, Geolocation{})
	st, err := v.ByCity(ctx, "Santos")
	if err != nil {
		t.Fatalf("ByCity() error = %v", err)
	}
	if st.LocationDenied {
		t.Error("LocationDenied should clear after a successful city query")
	}
	if st.Data.Classification != lunar.ForecastExcellent {
		t.Errorf("Classification = %q, want %q", st.Data.Classification, lunar.ForecastExcellent)
	}
}

func TestWeatherView_ByCity_ErrorClearsData(t *testing.T) {
	f := &stubFetcher{errs: map[string]error{"Atlantis": client.ErrLocationNotFound}}
	v := NewWeatherView(f, "")
	ctx := context.Background()

	_, _ = v.ByCity(ctx, "Santos")
	st, err := v.ByCity(ctx, "Atlantis")
	if !errors.Is(err, client.ErrLocationNotFound) {
		t.Fatalf("ByCity() error = %v, want ErrLocationNotFound", err)
	}
	if st.Data != nil {
		t.Error("Data should be nil after a failed query")
	}
	if !errors.Is(st.Err(), client.ErrLocationNotFound) || st.Error == "" {
		t.Errorf("state error = %v / %q", st.Err(), st.Error)
	}
	if st.Loading {
		t.Error("Loading = true after failure")
	}

	st, _ = v.ByCity(ctx, "Santos")
	if st.Error != "" || st.Data == nil {
		t.Errorf("next successful query should clear the error: %+v", st)
	}
}

func TestWeatherView_ByDate_DecoratesWithLocalPhase(t *testing.T) {
	f := &stubFetcher{}
	v := NewWeatherView(f, "")
	date := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)

	st, err := v.ByDate(context.Background(), "Santos", date)
	if err != nil {
		t.Fatalf("ByDate() error = %v", err)
	}
	if st.Data.Date != "2024-01-11" {
		t.Errorf("Data.Date = %q", st.Data.Date)
	}
	if st.Data.MoonPhase.Index != 0 || st.Data.MoonPhase.Name != "Lua Nova" {
		t.Errorf("MoonPhase = %+v, want index 0 Lua Nova", st.Data.MoonPhase)
	}
}

func TestWeatherView_ByDate_Error(t *testing.T) {
	f := &stubFetcher{errs: map[string]error{"Santos": client.ErrDataUnavailable}}
	v := NewWeatherView(f, "")

	st, err := v.ByDate(context.Background(), "Santos", time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, client.ErrDataUnavailable) {
		t.Fatalf("ByDate() error = %v", err)
	}
	if st.Data != nil {
		t.Error("Data should be nil")
	}
}

func TestWeatherView_AstronomyByDate(t *testing.T) {
	f := &stubFetcher{}
	v := NewWeatherView(f, "")
	date := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)

	st, err := v.AstronomyByDate(context.Background(), "Santos", date)
	if err != nil {
		t.Fatalf("AstronomyByDate() error = %v", err)
	}
	if st.Astronomy == nil || st.Astronomy.Astro.MoonPhase != "Waxing Gibbous" {
		t.Errorf("Astronomy = %+v", st.Astronomy)
	}
	if st.Data == nil {
		t.Error("Data should hold the dated forecast")
	}
	f.mu.Lock()
	calls := append([]string(nil), f.calls...)
	f.mu.Unlock()
	if len(calls) != 2 || calls[0] != "astro:Santos" || calls[1] != "Santos" {
		t.Errorf("call order = %v, want astronomy then forecast", calls)
	}
}

func TestWeatherView_AstronomyByDate_ForecastFailureOnlyClearsData(t *testing.T) {
	f := &stubFetcher{errs: map[string]error{"Santos": client.ErrDataUnavailable}}
	v := NewWeatherView(f, "")

	st, err := v.AstronomyByDate(context.Background(), "Santos", time.Now())
	if err != nil {
		t.Fatalf("AstronomyByDate() error = %v, want nil", err)
	}
	if st.Astronomy == nil {
		t.Error("Astronomy should be kept")
	}
	if st.Data != nil || st.Error != "" {
		t.Errorf("Data = %+v, Error = %q; want nil data and no error", st.Data, st.Error)
	}
}

func TestWeatherView_AstronomyByDate_AstronomyFailure(t *testing.T) {
	f := &stubFetcher{astroErr: client.ErrLocationNotFound}
	v := NewWeatherView(f, "")
	ctx := context.Background()

	_, _ = v.ByCity(ctx, "Santos")
	st, err := v.AstronomyByDate(ctx, "Atlantis", time.Now())
	if !errors.Is(err, client.ErrLocationNotFound) {
		t.Fatalf("AstronomyByDate() error = %v", err)
	}
	if st.Astronomy != nil || st.Data != nil {
		t.Errorf("astronomy failure should clear both results: %+v", st)
	}
	if f.callCount() != 2 {
		t.Errorf("forecast should not be fetched after astronomy failure, calls = %d", f.callCount())
	}
}

func TestWeatherView_StaleResponseDiscarded(t *testing.T) {
	slow := make(chan struct{})
	f := &stubFetcher{hold: map[string]chan struct{}{"Ubatuba": slow}}
	v := NewWeatherView(f, "")
	ctx := context.Background()

	type result struct {
		st  ViewState
		err error
	}
	done := make(chan result, 1)
	go func() {
		st, err := v.ByCity(ctx, "Ubatuba")
		done <- result{st, err}
	}()
	for f.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	st, err := v.ByCity(ctx, "Santos")
	if err != nil {
		t.Fatalf("ByCity(Santos) error = %v", err)
	}
	if st.Data.Location.Name != "Santos" || st.Superseded {
		t.Fatalf("ByCity(Santos) = %s superseded=%v, want Santos", st.Data.Location.Name, st.Superseded)
	}

	close(slow)
	res := <-done
	if res.err != nil {
		t.Fatalf("ByCity(Ubatuba) error = %v", res.err)
	}
	if res.st.Data == nil || res.st.Data.Location.Name != "Ubatuba" {
		t.Errorf("superseded caller got %+v, want its own Ubatuba result", res.st.Data)
	}
	if !res.st.Superseded || res.st.Loading || res.st.Seq != 1 {
		t.Errorf("superseded state = superseded %v loading %v seq %d", res.st.Superseded, res.st.Loading, res.st.Seq)
	}

	st = v.State()
	if st.Data.Location.Name != "Santos" || st.Superseded {
		t.Errorf("stale response overwrote state: Data = %s, want Santos", st.Data.Location.Name)
	}
	if st.Loading {
		t.Error("Loading = true after latest query finished")
	}
}

func TestWeatherView_SupersededFailureKeepsView(t *testing.T) {
	slow := make(chan struct{})
	notFound := errors.New("location not found")
	f := &stubFetcher{
		hold: map[string]chan struct{}{"Atlantis": slow},
		errs: map[string]error{"Atlantis": notFound},
	}
	v := NewWeatherView(f, "")
	ctx := context.Background()

	type result struct {
		st  ViewState
		err error
	}
	done := make(chan result, 1)
	go func() {
		st, err := v.ByDate(ctx, "Atlantis", time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC))
		done <- result{st, err}
	}()
	for f.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	if _, err := v.ByCity(ctx, "Santos"); err != nil {
		t.Fatalf("ByCity(Santos) error = %v", err)
	}

	close(slow)
	res := <-done
	if !errors.Is(res.err, notFound) {
		t.Fatalf("ByDate(Atlantis) error = %v, want its own failure", res.err)
	}
	if !res.st.Superseded || res.st.Data != nil || !errors.Is(res.st.Err(), notFound) {
		t.Errorf("superseded failure state = %+v", res.st)
	}
	if st := v.State(); st.Error != "" || st.Data == nil || st.Data.Location.Name != "Santos" {
		t.Errorf("view after superseded failure = %+v", st)
	}
}

func TestWeatherView_LoadingWhileInFlight(t *testing.T) {
	slow := make(chan struct{})
	f := &stubFetcher{hold: map[string]chan struct{}{"Santos": slow}}
	v := NewWeatherView(f, "")

	done := make(chan struct{})
	go func() {
		_, _ = v.ByCity(context.Background(), "Santos")
		close(done)
	}()
	for f.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	if !v.State().Loading {
		t.Error("Loading = false while query in flight")
	}
	close(slow)
	<-done
	if v.State().Loading {
		t.Error("Loading = true after completion")
	}
}
